package sqlinline

// Quota reservation is reserve-then-attempt: the decrement happens before the
// provider is invoked. The conditional update is the whole check-and-decrement
// in one statement, so concurrent reserves for the same user cannot drive the
// counter below zero.

const QEnsureGenerationLimit = `--sql 7b1f04e2-9c3a-4e86-b1d2-64a9f0c3de15
insert into generation_limits(user_id, images_remaining, images_limit, videos_remaining, videos_limit, created_at, updated_at)
values ($1::uuid, $2::int, $2::int, $3::int, $3::int, now(), now())
on conflict (user_id) do nothing;
`

const QReserveImage = `--sql 3e8a21d7-5f04-4b9c-8a31-c27d94e6b0f8
update generation_limits
set images_remaining = images_remaining - 1, updated_at = now()
where user_id = $1::uuid and images_remaining > 0
returning images_remaining;
`

const QReserveVideo = `--sql a94c7d02-61e8-4f3b-9d57-08b2c5e1fa36
update generation_limits
set videos_remaining = videos_remaining - 1, updated_at = now()
where user_id = $1::uuid and videos_remaining > 0
returning videos_remaining;
`

const QSelectGenerationLimit = `--sql f25b9e48-0d7c-4a61-b3f9-71e4a8d20c53
select user_id, images_remaining, images_limit, videos_remaining, videos_limit
from generation_limits
where user_id = $1::uuid;
`

const QSetGenerationLimit = `--sql 6cd03f91-27ab-4e58-90c4-e5f18b3a76d2
insert into generation_limits(user_id, images_remaining, images_limit, videos_remaining, videos_limit, created_at, updated_at)
values ($1::uuid, $2::int, $3::int, $4::int, $5::int, now(), now())
on conflict (user_id) do update
set images_remaining = excluded.images_remaining,
    images_limit = excluded.images_limit,
    videos_remaining = excluded.videos_remaining,
    videos_limit = excluded.videos_limit,
    updated_at = now()
returning user_id, images_remaining, images_limit, videos_remaining, videos_limit;
`

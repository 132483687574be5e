package sqlinline

const QInsertGeneratedVideo = `--sql b06c48d1-f93e-4a27-85b0-17e2c6a9d3f5
insert into generated_videos(
  id, project_id, owner_id, source_asset_id, parent_id, lineage_id,
  storage_key, width, height, duration_seconds, prompt, model_id, name, status, created_at
)
values (
  $1::uuid, $2::uuid, $3::uuid, $4::uuid, $5::uuid,
  coalesce(
    (select lineage_id from edited_images where id = $5::uuid),
    (select lineage_id from generated_videos where id = $5::uuid),
    gen_random_uuid()
  ),
  $6::text, $7::int, $8::int, $9::double precision, $10::text, $11::text, $12::text, $13::text, now()
)
returning lineage_id, created_at;
`

const QSelectProjectVideos = `--sql 4a91e5f7-208c-4d63-9b48-fd5061c3e872
select id, project_id, owner_id, source_asset_id, parent_id, lineage_id,
       storage_key, width, height, duration_seconds, prompt, model_id, name, status, created_at
from generated_videos
where project_id = $1::uuid
order by created_at desc;
`

const QSelectVideoByID = `--sql d5702b8e-16af-4c94-a3d1-59e8f0b647c2
select id, project_id, owner_id, source_asset_id, parent_id, lineage_id,
       storage_key, width, height, duration_seconds, prompt, model_id, name, status, created_at
from generated_videos
where id = $1::uuid;
`

const QUpdateVideoStatus = `--sql 2c48f6a0-9b3d-4e15-87c6-04d1a7e5b938
update generated_videos
set status = $2::text
where id = $1::uuid and status = 'processing'
returning id;
`

const QDeleteGeneratedVideo = `--sql 8f3b02d6-5c71-4a89-9e24-b6d09c4e17f3
delete from generated_videos
where id = $1::uuid and owner_id = $2::uuid
returning storage_key;
`

const QSelectStaleProcessingVideos = `--sql 03da571b-e842-4cf6-b091-7a25c8d4e6f0
select id
from generated_videos
where status = 'processing' and created_at < now() - ($1::int * interval '1 minute')
order by created_at asc
limit 50;
`

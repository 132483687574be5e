package sqlinline

// lineage_id is derived server-side: an edit of a prior artifact joins that
// artifact's lineage, an edit of an original upload roots a new one.

const QInsertEditedImage = `--sql 58c1a7f3-2e9d-4b06-a854-d07f63b9e124
insert into edited_images(
  id, project_id, owner_id, source_asset_id, parent_id, lineage_id,
  storage_key, width, height, prompt, model_id, name, created_at
)
values (
  $1::uuid, $2::uuid, $3::uuid, $4::uuid, $5::uuid,
  coalesce(
    (select lineage_id from edited_images where id = $5::uuid),
    (select lineage_id from generated_videos where id = $5::uuid),
    gen_random_uuid()
  ),
  $6::text, $7::int, $8::int, $9::text, $10::text, $11::text, now()
)
returning lineage_id, created_at;
`

const QSelectProjectImages = `--sql 90d4b2e6-7a15-4c38-bf92-3c68e0a1d547
select id, project_id, owner_id, source_asset_id, parent_id, lineage_id,
       storage_key, width, height, prompt, model_id, name, created_at
from edited_images
where project_id = $1::uuid
order by created_at desc;
`

const QSelectSourceImages = `--sql c37e90a1-48d6-4f2b-8e05-96b1d4f7a203
select id, project_id, owner_id, source_asset_id, parent_id, lineage_id,
       storage_key, width, height, prompt, model_id, name, created_at
from edited_images
where source_asset_id = $1::uuid
order by created_at desc;
`

const QSelectImageByID = `--sql 1f6d83b4-a052-4e97-b7c1-28d5e94f06ab
select id, project_id, owner_id, source_asset_id, parent_id, lineage_id,
       storage_key, width, height, prompt, model_id, name, created_at
from edited_images
where id = $1::uuid;
`

const QDeleteEditedImage = `--sql e82f15c9-634b-4d70-a9e6-b40c72d8f391
delete from edited_images
where id = $1::uuid and owner_id = $2::uuid
returning storage_key;
`

package sqlinline

// A timeline is every artifact on one lineage chain, oldest first, images and
// videos interleaved.

const QSelectTimeline = `--sql 67e9d2c4-1a85-40fb-b3d7-c92f04a6e815
select id, 'image' as kind, project_id, owner_id, source_asset_id, parent_id, lineage_id,
       storage_key, width, height, 0::double precision as duration_seconds,
       prompt, model_id, name, 'completed' as status, created_at
from edited_images
where lineage_id = $1::uuid
union all
select id, 'video' as kind, project_id, owner_id, source_asset_id, parent_id, lineage_id,
       storage_key, width, height, duration_seconds,
       prompt, model_id, name, status, created_at
from generated_videos
where lineage_id = $1::uuid
order by created_at asc;
`

const QSelectProjectLineages = `--sql ab40f8e2-63d9-47c5-8102-5e7b9c1d0a64
select distinct lineage_id from (
  select lineage_id from edited_images where project_id = $1::uuid
  union all
  select lineage_id from generated_videos where project_id = $1::uuid
) lineages;
`

const QSelectAllStorageKeys = `--sql 5d18c3f7-92b4-4a06-bc58-e31f60d7a429
select storage_key from edited_images
union all
select storage_key from generated_videos;
`

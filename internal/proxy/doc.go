// Package proxy rotates fetches across upstream proxy endpoints.
//
// [Pool] is the rotation: [Pool.Next] walks endpoints round-robin skipping those marked by
// [Pool.MarkFailed], and self-heals by clearing the failure set once every endpoint has failed.
// It only reports "no endpoint" for an empty rotation.
//
// Candidates come from [Source] implementations ([StaticSource], [FileSource], [GeonodeSource]).
// A [Refresher] merges them, optionally filters them through a [Checker], and replaces the
// pool contents on a fixed interval.
package proxy

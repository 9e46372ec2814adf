// Package services defines the [Provider] interface the orchestrator uses to list and fetch content,
// and implements it on top of yt-dlp.
//
// # Provider Interface
//
// A provider does two things: [Provider.ResolveItems] turns a target (video, playlist or channel URL)
// into an ordered list of [ResolvedItem], and [Provider.Fetch] retrieves a single item while reporting
// [Progress]. The orchestrator never inspects provider internals; retry policy for a single call
// belongs to the provider.
//
// # yt-dlp Implementation
//
// [YTDLPProvider] drives the yt-dlp binary through go-ytdlp. Targets are normalized with
// [NormalizeTarget] so that channel URLs resolve to their uploads. Listing uses a flat playlist dump
// and is retried with exponential backoff; fetches are single attempts.
//
// # Caching
//
// [CachedProvider] wraps any provider and keeps resolution results in a ristretto cache for a TTL.
// Concurrent identical resolutions are collapsed with singleflight.
//
// # Error Handling
//
// Providers return typed errors:
//   - [*ResolutionError] : the target could not be listed (task fatal)
//   - [*FetchError] : one item could not be retrieved (item fatal)
//   - [shared.ErrInvalidTarget] : the target is empty or not a URL
package services

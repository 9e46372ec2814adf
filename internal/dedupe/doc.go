// Package dedupe detects content that already exists on disk.
//
// Every output file is named "{sanitized title}_{content id}.{ext}", where the content id
// comes from [ContentID]. [Index.Lookup] checks a directory for that name, for any file
// carrying the content id, and finally for a file whose title words overlap the requested
// title by more than the configured threshold (see [Similarity]).
package dedupe

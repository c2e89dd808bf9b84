package anthropic

// CachedSystem returns a single system block marked as a prompt-cache
// breakpoint. The curator's instruction prompt is identical across calls, so
// repeated extractions in a session read it from cache.
func CachedSystem(text string) []SystemBlock {
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}

// Package policy holds the thresholds shared by the matcher, the classifier
// prompt and the commit validator.
package policy

// Semantic matching.
const (
	// MinSimilarity is the lowest cosine similarity a candidate may have.
	MinSimilarity = 0.6
	// MatchCount is the number of nearest neighbours requested per type.
	MatchCount = 2
	// MinMentionLength excludes mentions of this many characters or fewer.
	MinMentionLength = 2
	// FallbackPrefixChars is the content prefix used when no mention is found.
	FallbackPrefixChars = 500
)

// Confidence bucket floors.
const (
	ConfidenceStated   = 0.90 // directly and unambiguously stated
	ConfidenceImplied  = 0.70 // strongly implied or standard terminology
	ConfidenceInferred = 0.50 // reasonable inference
)

// DerivedKeyConfidence is assigned to natural keys derived from a name.
const DerivedKeyConfidence = ConfidenceInferred

// Bucket names a confidence value on the fixed scale.
type Bucket string

// Buckets.
const (
	BucketStated   Bucket = "stated"
	BucketImplied  Bucket = "implied"
	BucketInferred Bucket = "inferred"
	BucketGuess    Bucket = "guess"
)

// BucketFor maps a confidence to its bucket.
func BucketFor(confidence float64) Bucket {
	switch {
	case confidence >= ConfidenceStated:
		return BucketStated
	case confidence >= ConfidenceImplied:
		return BucketImplied
	case confidence >= ConfidenceInferred:
		return BucketInferred
	default:
		return BucketGuess
	}
}

// NeedsReview reports whether a value is a guess that must be flagged for a human.
func NeedsReview(confidence float64) bool {
	return BucketFor(confidence) == BucketGuess
}

// ValidConfidence reports whether c lies in [0,1].
func ValidConfidence(c float64) bool {
	return c >= 0 && c <= 1
}

// Feedback weighting: partial judgments count as half a success.
const PartialSuccessWeight = 0.5

// OverallFieldName labels feedback recorded without a field name.
const OverallFieldName = "(overall)"

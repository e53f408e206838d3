package taskname

const (
	// Inventory tasks
	InventoryResolveAsset = "inventory:resolve_asset"

	// Scoring events published by the quiz and streaming collaborators
	ScoringQuizCompleted = "scoring:quiz_completed"
	ScoringStreamLogged  = "scoring:stream_logged"
)

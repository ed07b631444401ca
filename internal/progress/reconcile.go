package progress

// MergeConfirmed merges a server-confirmed record over the local optimistic
// entry for the same lesson. The server is authoritative once it accepts a
// write: it already performed last-writer-wins against clientUpdatedAt. The
// local safety net is that the stored progress fraction never regresses and
// accumulated time is never lost by overwrite.
func MergeConfirmed(local, server LessonProgress) LessonProgress {
	merged := server.clone()

	if local.Progress > merged.Progress {
		merged.Progress = local.Progress
	}
	merged.Completed = IsComplete(merged.Progress)

	if local.TimeSpentSeconds > merged.TimeSpentSeconds {
		merged.TimeSpentSeconds = local.TimeSpentSeconds
	}

	if merged.Score == nil && local.Score != nil {
		score := *local.Score
		merged.Score = &score
	}

	if local.ClientUpdatedAt.After(merged.ClientUpdatedAt) {
		merged.ClientUpdatedAt = local.ClientUpdatedAt
	}

	return merged
}

package syncer

import "github.com/MnemoResearchLab/mnemo/backend/internal/vocab"

// resolveReplica picks between two same-id card replicas during activation.
// The replica with larger accumulated progress (repetitions + interval) wins;
// ties resolve in favour of the remote copy. Progress comparison survives
// clock skew across long offline periods, at the accepted cost of sometimes
// discarding a newer-but-less-advanced edit.
func resolveReplica(local, remote vocab.Card) (winner vocab.Card, localWins bool) {
	if local.Progress() > remote.Progress() {
		return local, true
	}
	return remote, false
}

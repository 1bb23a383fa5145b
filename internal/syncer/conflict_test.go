package syncer

import (
	"testing"

	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
)

func TestResolveReplicaPrefersGreaterProgress(t *testing.T) {
	local := vocab.Card{CardID: "c", Repetitions: 5, IntervalDays: 10}
	remote := vocab.Card{CardID: "c", Repetitions: 2, IntervalDays: 3}

	winner, localWins := resolveReplica(local, remote)
	if !localWins {
		t.Fatalf("expected local replica to win")
	}
	if winner.Repetitions != 5 {
		t.Fatalf("expected local state adopted, got %+v", winner)
	}
}

func TestResolveReplicaTieGoesToRemote(t *testing.T) {
	local := vocab.Card{CardID: "c", Term: "local", Repetitions: 3, IntervalDays: 2}
	remote := vocab.Card{CardID: "c", Term: "remote", Repetitions: 1, IntervalDays: 4}

	winner, localWins := resolveReplica(local, remote)
	if localWins {
		t.Fatalf("equal progress must resolve to the remote replica")
	}
	if winner.Term != "remote" {
		t.Fatalf("expected remote state adopted, got %+v", winner)
	}
}

func TestResolveReplicaRemoteAheadWins(t *testing.T) {
	local := vocab.Card{CardID: "c", Repetitions: 1, IntervalDays: 1}
	remote := vocab.Card{CardID: "c", Repetitions: 4, IntervalDays: 9}

	winner, localWins := resolveReplica(local, remote)
	if localWins {
		t.Fatalf("expected remote replica to win")
	}
	if winner.Repetitions != 4 {
		t.Fatalf("expected remote state adopted, got %+v", winner)
	}
}

package flagging

import (
	"context"

	"github.com/roach88/civicledger/internal/ledger"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	records     map[string]ledger.BudgetRecord
	actors      map[string]Actor
	flags       []Flag
	escalations []Escalation

	insertEscalationErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		records: make(map[string]ledger.BudgetRecord),
		actors:  make(map[string]Actor),
	}
}

func (m *memRepo) addRecord(id string, partition ledger.PartitionID) {
	rec := ledger.BudgetRecord{ID: id}
	rec.PartitionID = partition
	m.records[id] = rec
}

func (m *memRepo) addActor(id string, partition ledger.PartitionID, role Role) {
	m.actors[id] = Actor{ID: id, PartitionID: partition, Role: role}
}

func (m *memRepo) GetRecord(_ context.Context, recordID string) (ledger.BudgetRecord, error) {
	rec, ok := m.records[recordID]
	if !ok {
		return ledger.BudgetRecord{}, &ledger.Error{Code: ledger.CodeRecordNotFound, RecordID: recordID}
	}
	return rec, nil
}

func (m *memRepo) GetActor(_ context.Context, actorID string) (Actor, error) {
	a, ok := m.actors[actorID]
	if !ok {
		return Actor{}, &ledger.Error{Code: ledger.CodeActorNotFound, UserID: actorID}
	}
	return a, nil
}

func (m *memRepo) CountRole(_ context.Context, partition ledger.PartitionID, role Role) (int, error) {
	n := 0
	for _, a := range m.actors {
		if a.PartitionID == partition && a.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) InsertFlag(_ context.Context, flag Flag) (string, error) {
	for _, f := range m.flags {
		if f.RecordID == flag.RecordID && f.UserID == flag.UserID {
			return "", &ledger.Error{Code: ledger.CodeDuplicateFlag}
		}
	}
	m.flags = append(m.flags, flag)
	return flag.ID, nil
}

func (m *memRepo) CountFlags(_ context.Context, recordID string) (int, error) {
	n := 0
	for _, f := range m.flags {
		if f.RecordID == recordID {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) PendingEscalation(_ context.Context, recordID string) (*Escalation, error) {
	for i := range m.escalations {
		if m.escalations[i].RecordID == recordID && m.escalations[i].Status == StatusPending {
			esc := m.escalations[i]
			return &esc, nil
		}
	}
	return nil, nil
}

func (m *memRepo) InsertEscalation(_ context.Context, esc Escalation) (string, error) {
	if m.insertEscalationErr != nil {
		return "", m.insertEscalationErr
	}
	m.escalations = append(m.escalations, esc)
	return esc.ID, nil
}

package common

import (
	"encoding/json"

	"github.com/google/uuid"
)

// JobID identifies a single submitted copy job for its entire lifetime, across daemon
// restarts, checkpoint files, and progress events.
type JobID struct {
	uuid.UUID
}

func NewJobID() JobID {
	return JobID{UUID: uuid.New()}
}

func ParseJobID(s string) (JobID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return JobID{}, err
	}
	return JobID{UUID: u}, nil
}

func (j JobID) String() string {
	return j.UUID.String()
}

func (j JobID) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.String())
}

func (j *JobID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseJobID(s)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

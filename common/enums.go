package common

import (
	"encoding/json"
	"reflect"
	"sync/atomic"

	"github.com/JeffreyRichter/enum/enum"
)

var EJobState = JobState(0)

// JobState indicates the lifecycle state of a job; the default is Pending.
type JobState uint32 // Must be 32-bit for atomic operations

func (j *JobState) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(j), s, true, true)
	if err == nil {
		*j = val.(JobState)
	}
	return err
}

func (j JobState) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.String())
}

func (j *JobState) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return j.Parse(s)
}

func (j *JobState) AtomicLoad() JobState {
	return JobState(atomic.LoadUint32((*uint32)(j)))
}

func (j *JobState) AtomicStore(newState JobState) {
	atomic.StoreUint32((*uint32)(j), uint32(newState))
}

func (j JobState) IsTerminal() bool {
	return j == EJobState.Completed() || j == EJobState.Failed() || j == EJobState.Cancelled()
}

func (JobState) Pending() JobState   { return JobState(0) }
func (JobState) Running() JobState   { return JobState(1) }
func (JobState) Paused() JobState    { return JobState(2) }
func (JobState) Completed() JobState { return JobState(3) }
func (JobState) Failed() JobState    { return JobState(4) }
func (JobState) Cancelled() JobState { return JobState(5) }

func (j JobState) String() string {
	return enum.StringInt(j, reflect.TypeOf(j))
}

////////////////////////////////////////////////////////////////

var EVerifyMode = VerifyMode(0)

// VerifyMode selects how (or whether) a completed copy is checked against its source.
type VerifyMode uint8

func (v *VerifyMode) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(v), s, true, true)
	if err == nil {
		*v = val.(VerifyMode)
	}
	return err
}

func (v VerifyMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *VerifyMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return v.Parse(s)
}

func (VerifyMode) None() VerifyMode   { return VerifyMode(0) }
func (VerifyMode) Size() VerifyMode   { return VerifyMode(1) }
func (VerifyMode) Md5() VerifyMode    { return VerifyMode(2) }
func (VerifyMode) Sha256() VerifyMode { return VerifyMode(3) }

func (v VerifyMode) String() string {
	return enum.StringInt(v, reflect.TypeOf(v))
}

////////////////////////////////////////////////////////////////

var EExistsAction = ExistsAction(0)

// ExistsAction governs what the copy engine does when a destination path is already occupied.
type ExistsAction uint8

func (e *ExistsAction) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(e), s, true, true)
	if err == nil {
		*e = val.(ExistsAction)
	}
	return err
}

func (e ExistsAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *ExistsAction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return e.Parse(s)
}

func (ExistsAction) Overwrite() ExistsAction { return ExistsAction(0) }
func (ExistsAction) Skip() ExistsAction      { return ExistsAction(1) }
func (ExistsAction) Serial() ExistsAction    { return ExistsAction(2) }

func (e ExistsAction) String() string {
	return enum.StringInt(e, reflect.TypeOf(e))
}

////////////////////////////////////////////////////////////////

var EEngine = Engine(0)

// Engine names the copy strategy a transfer actually used, reported back in progress events.
type Engine uint8

func (e *Engine) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(e), s, true, true)
	if err == nil {
		*e = val.(Engine)
	}
	return err
}

func (e Engine) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Engine) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return e.Parse(s)
}

// Numeric values match the wire encoding for the requested-engine field; Sparse is a
// synthetic value only ever reported back as the engine actually used, never requested.
func (Engine) Auto() Engine          { return Engine(0) }
func (Engine) IoUringLike() Engine   { return Engine(1) }
func (Engine) CopyFileRange() Engine { return Engine(2) }
func (Engine) Sendfile() Engine      { return Engine(3) }
func (Engine) Reflink() Engine       { return Engine(4) }
func (Engine) ReadWrite() Engine     { return Engine(5) }
func (Engine) Sparse() Engine        { return Engine(6) }

func (e Engine) String() string {
	return enum.StringInt(e, reflect.TypeOf(e))
}

////////////////////////////////////////////////////////////////

var EErrorKind = ErrorKind(0)

// ErrorKind is copyd's stable error taxonomy, surfaced to clients over the wire so they
// can branch on failure category without parsing message text.
type ErrorKind uint8

func (e *ErrorKind) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(e), s, true, true)
	if err == nil {
		*e = val.(ErrorKind)
	}
	return err
}

func (e ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *ErrorKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return e.Parse(s)
}

func (ErrorKind) NotFound() ErrorKind          { return ErrorKind(0) }
func (ErrorKind) PermissionDenied() ErrorKind  { return ErrorKind(1) }
func (ErrorKind) AlreadyExists() ErrorKind     { return ErrorKind(2) }
func (ErrorKind) CrossDevice() ErrorKind       { return ErrorKind(3) }
func (ErrorKind) Unsupported() ErrorKind       { return ErrorKind(4) }
func (ErrorKind) InsufficientSpace() ErrorKind { return ErrorKind(5) }
func (ErrorKind) Verification() ErrorKind      { return ErrorKind(6) }
func (ErrorKind) CheckpointCorrupt() ErrorKind { return ErrorKind(7) }
func (ErrorKind) Protocol() ErrorKind          { return ErrorKind(8) }
func (ErrorKind) Invalid() ErrorKind           { return ErrorKind(9) }
func (ErrorKind) Transient() ErrorKind         { return ErrorKind(10) }
func (ErrorKind) Internal() ErrorKind          { return ErrorKind(11) }

func (e ErrorKind) String() string {
	return enum.StringInt(e, reflect.TypeOf(e))
}

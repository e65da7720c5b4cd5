package rfcore

type TriggerType uint8

const (
	TrigNow        TriggerType = 0
	TrigNever      TriggerType = 1
	TrigAbsTime    TriggerType = 2
	TrigRelPrevEnd TriggerType = 7
)

func (t TriggerType) String() string {
	switch t {
	case TrigNow:
		return "NOW"
	case TrigNever:
		return "NEVER"
	case TrigAbsTime:
		return "ABSTIME"
	case TrigRelPrevEnd:
		return "REL_PREVEND"
	default:
		return "?"
	}
}

// MaxLead is the furthest ahead of the radio timer a trigger time can be set.
const MaxLead = 1 << 31

type Trigger struct {
	Type TriggerType
	// EnaCmd lets a CmdTrigger direct command fire the trigger regardless of Type.
	EnaCmd    bool
	TriggerNo uint8
	// PastTrig allows a trigger whose time has already passed to fire at once.
	PastTrig bool
}

// after reports whether now is at or past t on the wrapping 32-bit radio timer.
func after(now, t uint32) bool {
	return int32(now-t) >= 0
}

// Due reports whether t fires at radio time now. For TrigAbsTime offset is
// the absolute time; for TrigRelPrevEnd it is added to prevEnd.
//
// Trigger times are compared on the wrapping timer: a time more than
// MaxLead ticks ahead of now counts as already past.
func (t Trigger) Due(now, prevEnd, offset uint32) bool {
	switch t.Type {
	case TrigNow:
		return true
	case TrigAbsTime:
		return after(now, offset)
	case TrigRelPrevEnd:
		return after(now, prevEnd+offset)
	default:
		return false
	}
}

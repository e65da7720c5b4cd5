package rfcore

// Scheduler executes a chain of operations the way the radio engine does:
// each operation starts when its start trigger fires, ends when its end
// trigger fires, and the next linked operation is entered at that end time
// unless the completion condition says otherwise. It does no I/O; whoever
// models the engine drives it with the radio time.
type Scheduler struct {
	cur     *Operation
	prevEnd uint32
}

// Start enters op at radio time now. Any operation still running is
// abandoned without a status change.
func (s *Scheduler) Start(op *Operation, now uint32) {
	s.prevEnd = now
	s.enter(op, now)
	s.Advance(now)
}

func (s *Scheduler) enter(op *Operation, now uint32) {
	s.cur = op
	if op == nil {
		return
	}
	if op.Params == nil {
		op.SetStatus(StatusErrorPar)
		s.cur = nil
		return
	}
	if op.StartTrigger.Due(now, s.prevEnd, op.StartTime) {
		op.SetStatus(StatusActive)
	} else {
		op.SetStatus(StatusPending)
	}
}

// endTime returns the radio time at which op's end trigger fires.
func (s *Scheduler) endTime(op *Operation) (uint32, bool) {
	t := op.Params.EndTrigger
	switch t.Type {
	case TrigAbsTime:
		return op.Params.EndTime, true
	case TrigRelPrevEnd:
		return s.prevEnd + op.Params.EndTime, true
	default:
		return 0, false
	}
}

// finish ends the current operation at radio time at and enters its
// successor, if the completion condition allows one.
func (s *Scheduler) finish(at uint32, status Status) {
	op := s.cur
	op.SetStatus(status)
	s.prevEnd = at
	if op.Condition.Rule == CondNever || op.Next == nil {
		s.cur = nil
		return
	}
	s.enter(op.Next, at)
}

// Advance moves the chain forward to radio time now, firing every trigger
// that came due on the way.
func (s *Scheduler) Advance(now uint32) {
	for s.cur != nil {
		op := s.cur
		if op.Status() == StatusPending {
			if !op.StartTrigger.Due(now, s.prevEnd, op.StartTime) {
				return
			}
			op.SetStatus(StatusActive)
		}
		if !op.Params.EndTrigger.Due(now, s.prevEnd, op.Params.EndTime) {
			return
		}
		at, ok := s.endTime(op)
		if !ok {
			at = now
		}
		s.finish(at, StatusDoneOK)
	}
}

// Trigger delivers an external trigger at radio time now. It ends the
// current operation only when its end trigger accepts commands, and reports
// whether it did.
func (s *Scheduler) Trigger(now uint32) bool {
	if s.cur == nil || s.cur.Status() != StatusActive || !s.cur.Params.EndTrigger.EnaCmd {
		return false
	}
	s.finish(now, StatusDoneOK)
	s.Advance(now)
	return true
}

// Stop ends the current operation gracefully. Operations after it in the
// chain never start.
func (s *Scheduler) Stop(now uint32) {
	s.halt(now, StatusDoneStopped)
}

// Abort ends the current operation at once.
func (s *Scheduler) Abort(now uint32) {
	s.halt(now, StatusDoneAbort)
}

func (s *Scheduler) halt(now uint32, status Status) {
	if s.cur == nil {
		return
	}
	s.cur.SetStatus(status)
	s.prevEnd = now
	s.cur = nil
}

// Current returns the operation the engine is executing, or nil.
func (s *Scheduler) Current() *Operation {
	return s.cur
}

func (s *Scheduler) Running() bool {
	return s.cur != nil
}

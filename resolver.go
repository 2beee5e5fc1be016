package ftp

import "sync"

// transferResolver reconciles the two asynchronous completion sources of a
// file transfer — the data channel's clean EOF and the control channel's
// terminal "226 Transfer complete" — into one outcome, per spec section
// 4.6 and the state-machine note in spec section 9. It settles exactly
// once: either onError fires first and the transfer rejects, or both
// dataDone and a control response have arrived and it resolves.
//
// A plain sync.Once cannot express "first error always wins, but the
// success predicate must be evaluated every time a new input arrives and
// NOT clobber a prior error" — so the guard is a bool under the same
// mutex protecting the other fields, checked before every mutation.
type transferResolver struct {
	mu       sync.Mutex
	dataDone bool
	response *Response
	err      error
	settled  bool
	done     chan struct{}
}

func newTransferResolver() *transferResolver {
	return &transferResolver{done: make(chan struct{})}
}

// onDataDone records that the data channel reported clean completion
// (ordinary EOF, or the SOCKS5 size-probe's success proxy — see
// sizeprobe.go).
func (r *transferResolver) onDataDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return
	}
	r.dataDone = true
	r.settleIfReadyLocked()
}

// onControlDone records the terminal 2xx response from the control
// channel.
func (r *transferResolver) onControlDone(resp *Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return
	}
	r.response = resp
	r.settleIfReadyLocked()
}

// onError rejects the transfer with err. The first error wins; later
// events of any kind are discarded.
func (r *transferResolver) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return
	}
	r.err = err
	r.settled = true
	close(r.done)
}

// onUnexpectedRequest handles a 3xx intermediate response the core has no
// follow-up command for. Per spec section 4.6 this is fatal: the control
// channel's state is now ambiguous, so the transfer is rejected and the
// caller is expected to close the control connection.
func (r *transferResolver) onUnexpectedRequest(resp *Response) {
	r.onError(&ProtocolError{
		Command:  "(unsolicited)",
		Response: resp.Message,
		Code:     resp.Code,
	})
}

func (r *transferResolver) settleIfReadyLocked() {
	if r.dataDone && r.response != nil {
		r.settled = true
		close(r.done)
	}
}

// wait blocks until the resolver settles and returns the resolved
// response, or the first error recorded.
func (r *transferResolver) wait() (*Response, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.response, nil
}

// errUnexpectedControlCode builds the error onControlDone's caller should
// raise when the control channel's terminal response is not 2xx.
func errUnexpectedControlCode(cmd string, resp *Response) error {
	return &ProtocolError{Command: cmd, Response: resp.Message, Code: resp.Code}
}

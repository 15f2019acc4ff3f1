package peer

import "github.com/pion/webrtc/v4"

// candidateQueue buffers remote candidates that arrive before the remote
// description. It is owned by one session and guarded by the session lock.
type candidateQueue struct {
	items []webrtc.ICECandidateInit
}

func (q *candidateQueue) push(c webrtc.ICECandidateInit) {
	q.items = append(q.items, c)
}

// pop removes the oldest candidate.
func (q *candidateQueue) pop() (webrtc.ICECandidateInit, bool) {
	if len(q.items) == 0 {
		return webrtc.ICECandidateInit{}, false
	}
	c := q.items[0]
	q.items[0] = webrtc.ICECandidateInit{}
	q.items = q.items[1:]
	return c, true
}

func (q *candidateQueue) len() int { return len(q.items) }

func (q *candidateQueue) reset() { q.items = nil }

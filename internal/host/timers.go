package host

import (
	"container/heap"
	"time"

	"github.com/fuchsia-oss/mdnscore/internal/agent"
)

// timerKey scopes a TimerID to the agent that scheduled it: agent.TimerID
// alone is only unique within one agent, so every agentID gets its own
// namespace.
type timerKey struct {
	agent agentID
	id    agent.TimerID
}

type timerNode struct {
	key        timerKey
	fireAt     time.Time
	generation uint64
	index      int
}

type timerHeap []*timerNode

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	n := x.(*timerNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[:n-1]
	return node
}

// scheduleTimer asks to be woken for key at t, replacing any deadline
// already scheduled for it (the generation bump orphans the old heap node
// rather than searching the heap for it, the same trick
// internal/renewer uses).
func (h *Host) scheduleTimer(key timerKey, t time.Time) {
	h.timerGen[key]++
	heap.Push(&h.timerHeap, &timerNode{key: key, fireAt: t, generation: h.timerGen[key]})
}

// cancelTimer cancels a previously scheduled key, if still pending.
func (h *Host) cancelTimer(key timerKey) {
	if _, ok := h.timerGen[key]; ok {
		h.timerGen[key]++
	}
}

// clearAgentTimers drops every live generation entry belonging to id. Any
// heap nodes already scheduled for it become stale and are discarded the
// next time they'd otherwise fire.
func (h *Host) clearAgentTimers(id agentID) {
	for k := range h.timerGen {
		if k.agent == id {
			delete(h.timerGen, k)
		}
	}
}

// peekValidTop returns the earliest still-live timer node without removing
// it, discarding any stale nodes (superseded by a reschedule or cancel) it
// finds along the way.
func (h *Host) peekValidTop() (*timerNode, bool) {
	for h.timerHeap.Len() > 0 {
		top := h.timerHeap[0]
		if h.timerGen[top.key] != top.generation {
			heap.Pop(&h.timerHeap)
			continue
		}
		return top, true
	}
	return nil, false
}

// nextDeadline reports the time of the next live timer, if any. The
// dispatch loop uses this to size its blocking wait.
func (h *Host) nextDeadline() (time.Time, bool) {
	node, ok := h.peekValidTop()
	if !ok {
		return time.Time{}, false
	}
	return node.fireAt, true
}

// fireDueTimers pops and delivers every timer due at or before now to the
// agent that scheduled it.
func (h *Host) fireDueTimers(now time.Time) {
	h.enterDistribution()
	defer h.exitDistribution()

	for {
		node, ok := h.peekValidTop()
		if !ok || node.fireAt.After(now) {
			return
		}
		heap.Pop(&h.timerHeap)
		delete(h.timerGen, node.key)
		a, ok := h.agents[node.key.agent]
		if !ok {
			continue
		}
		a.HandleTimer(hostView{h, node.key.agent}, node.key.id)
	}
}

package opt

import (
	"context"
	"math"
	"sync"
	"time"

	"xcscore/internal/flight"
	"xcscore/internal/geo"
	"xcscore/internal/scoring"
)

// nodeMsg hands a node to a worker. Floor is the best score known when it
// was sent; children bounded at or below it are not returned.
type nodeMsg struct {
	Task   int
	ID     int64
	Ranges []geo.Range
	Bound  float64
	Floor  float64
}

// childMsg is a bounded and scored child.
type childMsg struct {
	Ranges []geo.Range
	Bound  float64
	Score  float64
	Info   *scoring.Info
}

type resultMsg struct {
	Worker   int
	Parent   int64
	Task     int
	Children []childMsg
	Err      error
}

// worker expands nodes with its own engines, so its caches are private.
type worker struct {
	id    int
	tasks []*task
	in    chan nodeMsg
}

func (w *worker) run(out chan<- resultMsg, wg *sync.WaitGroup) {
	defer wg.Done()
	for msg := range w.in {
		out <- w.expand(msg)
	}
}

func (w *worker) expand(msg nodeMsg) (res resultMsg) {
	res = resultMsg{Worker: w.id, Parent: msg.ID, Task: msg.Task}
	defer geo.RecoverGeodesic(&res.Err)

	node := restore(w.tasks[msg.Task], msg.Ranges, msg.ID, 0)
	for _, child := range node.branch(func() int64 { return 0 }) {
		if err := child.bound(); err != nil {
			res.Err = err
			return res
		}
		if child.Bound <= msg.Floor {
			continue
		}
		if err := child.score(); err != nil {
			res.Err = err
			return res
		}
		res.Children = append(res.Children, childMsg{
			Ranges: child.Ranges, Bound: child.Bound, Score: child.Score, Info: child.Info,
		})
	}
	return res
}

// pool dispatches nodes to the least loaded worker.
type pool struct {
	workers []*worker
	load    []int
	depth   int
	results chan resultMsg
	// inflight holds the bound of every node out with a worker.
	inflight map[int64]float64
	wg       sync.WaitGroup
}

func newPool(n, depth int, track *flight.Track, rules []scoring.Rule, dist geo.Distance) (*pool, error) {
	p := &pool{
		load:     make([]int, n),
		depth:    depth,
		results:  make(chan resultMsg, n*depth),
		inflight: map[int64]float64{},
	}
	for i := 0; i < n; i++ {
		tasks, err := buildTasks(track, rules, dist)
		if err != nil {
			p.close()
			return nil, err
		}
		w := &worker{id: i, tasks: tasks, in: make(chan nodeMsg, depth)}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go w.run(p.results, &p.wg)
	}
	return p, nil
}

// leastLoaded returns the index of the idlest worker with room, or -1.
func (p *pool) leastLoaded() int {
	best := -1
	for i, l := range p.load {
		if l < p.depth && (best < 0 || l < p.load[best]) {
			best = i
		}
	}
	return best
}

func (p *pool) send(w int, msg nodeMsg) {
	p.load[w]++
	p.inflight[msg.ID] = msg.Bound
	p.workers[w].in <- msg
}

func (p *pool) received(res resultMsg) {
	p.load[res.Worker]--
	delete(p.inflight, res.Parent)
}

func (p *pool) maxBound() float64 {
	ub := math.Inf(-1)
	for _, b := range p.inflight {
		ub = math.Max(ub, b)
	}
	return ub
}

func (p *pool) close() {
	for _, w := range p.workers {
		close(w.in)
	}
	p.wg.Wait()
}

func (s *Solver) rules() []scoring.Rule {
	var rules []scoring.Rule
	seen := map[*scoring.Rule]bool{}
	for _, t := range s.tasks {
		if !seen[t.rule] {
			seen[t.rule] = true
			rules = append(rules, *t.rule)
		}
	}
	return rules
}

// cycleParallel is the dispatcher loop. The search is exhausted when the
// queue is empty and no node is out with a worker.
func (s *Solver) cycleParallel(ctx context.Context, start time.Time) (bool, error) {
	if s.pool == nil {
		p, err := newPool(s.cfg.Workers, s.cfg.WorkerDepth, s.track, s.rules(), s.dist)
		if err != nil {
			return false, err
		}
		s.pool = p
	}
	p := s.pool

	var deadline <-chan time.Time
	if s.cfg.MaxCycle > 0 {
		timer := time.NewTimer(s.cfg.MaxCycle)
		defer timer.Stop()
		deadline = timer.C
	}

	count := 0
	probed := -1
	for {
		for s.queue.Len() > 0 {
			w := p.leastLoaded()
			if w < 0 {
				break
			}
			cur := s.queue.PopMax()
			if s.dominated(cur) {
				s.queue.Clear()
				break
			}
			p.send(w, nodeMsg{Task: cur.task.index, ID: cur.ID, Ranges: cur.Ranges, Bound: cur.Bound, Floor: s.best.Score})
		}
		if s.queue.Len() == 0 && len(p.inflight) == 0 {
			return true, nil
		}
		if s.spent(start, count) {
			return false, nil
		}
		if count/probeEvery != probed {
			probed = count / probeEvery
			if s.pressure(s.cfg.MemoryLimit) {
				return false, nil
			}
		}

		select {
		case res := <-p.results:
			p.received(res)
			if res.Err != nil {
				return false, res.Err
			}
			count += s.merge(res)
		case <-ctx.Done():
			return false, nil
		case <-deadline:
			return false, nil
		}
	}
}

// merge queues the children a worker returned, dropping those the best
// score has caught up with in the meantime.
func (s *Solver) merge(res resultMsg) int {
	t := s.tasks[res.Task]
	n := 0
	for _, c := range res.Children {
		if c.Bound <= s.best.Score {
			continue
		}
		child := restore(t, c.Ranges, s.newID(), res.Parent)
		child.Bound, child.Score, child.Info = c.Bound, c.Score, c.Info
		s.traceNode("score", child)
		s.processed++
		n++
		s.consider(child)
		s.queue.Push(child)
	}
	return n
}

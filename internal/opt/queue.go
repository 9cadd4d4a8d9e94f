package opt

import "github.com/biogo/store/llrb"

// queue is the ordered set of open nodes, best bound last.
type queue struct {
	tree llrb.Tree
}

func (q *queue) Len() int { return q.tree.Len() }

func (q *queue) Push(s *Solution) { q.tree.Insert(s) }

func (q *queue) Max() *Solution {
	if c := q.tree.Max(); c != nil {
		return c.(*Solution)
	}
	return nil
}

func (q *queue) Min() *Solution {
	if c := q.tree.Min(); c != nil {
		return c.(*Solution)
	}
	return nil
}

// PopMax removes and returns the node with the highest bound.
func (q *queue) PopMax() *Solution {
	s := q.Max()
	if s != nil {
		q.tree.DeleteMax()
	}
	return s
}

func (q *queue) Clear() { q.tree = llrb.Tree{} }

// DropDominated removes every node whose bound is not above score and
// returns how many were dropped. The survivors are collected in one
// in-order walk and the tree is rebuilt from them.
func (q *queue) DropDominated(score float64) int {
	var keep []*Solution
	q.tree.Do(func(c llrb.Comparable) bool {
		if s := c.(*Solution); s.Bound > score {
			keep = append(keep, s)
		}
		return false
	})
	n := q.tree.Len() - len(keep)
	if n == 0 {
		return 0
	}
	q.tree = llrb.Tree{}
	for _, s := range keep {
		q.tree.Insert(s)
	}
	return n
}

// Package sched is the per-core cooperative scheduler started at the end of
// every core's boot sequence.
package sched

import (
	"errors"
	"time"
)

const maxTasks = 32

var (
	ErrTooManyTasks = errors.New("sched: too many tasks")
	ErrStarted      = errors.New("sched: core already started")
	ErrNoCore       = errors.New("sched: no such core")
)

type TaskID uint8

// MainTask is the current task of a core between boot and its first step.
const MainTask TaskID = 0xFF

// Task is a cooperative unit of execution.
type Task interface {
	Step(*Context)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(*Context)

func (f TaskFunc) Step(ctx *Context) { f(ctx) }

// Context provides task-local access to its core.
type Context struct {
	c           *Core
	taskID      TaskID
	blockOnTick bool
}

// TaskID returns the current task ID.
func (ctx *Context) TaskID() TaskID { return ctx.taskID }

// Core returns the ID of the core running the task.
func (ctx *Context) Core() int { return ctx.c.id }

// NowTick returns the number of timer ticks the core has taken.
func (ctx *Context) NowTick() uint64 { return ctx.c.now }

// BlockOnTick parks the task until the core's next timer tick.
func (ctx *Context) BlockOnTick() { ctx.blockOnTick = true }

type taskState struct {
	task     Task
	name     string
	runnable bool
}

// Core is the run queue of one processor. All of its methods must be called
// from the goroutine that owns the core; before Run that is the goroutine
// that built it.
type Core struct {
	id int

	tasks     [maxTasks]taskState
	taskCount TaskID
	rr        TaskID
	current   TaskID

	tickWaitMask uint32
	now          uint64

	ticker  *time.Ticker
	started bool
}

// NewCore returns an empty run queue for core id.
func NewCore(id int) *Core {
	return &Core{id: id, current: MainTask}
}

// ID returns the core number.
func (c *Core) ID() int { return c.id }

// AddTask registers a runnable task.
func (c *Core) AddTask(name string, t Task) (TaskID, error) {
	if c.taskCount >= maxTasks {
		return 0, ErrTooManyTasks
	}
	id := c.taskCount
	c.taskCount++
	c.tasks[id] = taskState{task: t, name: name, runnable: true}
	return id, nil
}

// Tasks returns the number of registered tasks.
func (c *Core) Tasks() int { return int(c.taskCount) }

// TaskName returns the name a task was registered under.
func (c *Core) TaskName(id TaskID) string {
	if id == MainTask {
		return "main"
	}
	if id >= c.taskCount {
		return ""
	}
	return c.tasks[id].name
}

// Current returns the task running (or last run) on the core.
func (c *Core) Current() TaskID { return c.current }

func (c *Core) setCurrent(id TaskID) { c.current = id }

// NowTick returns the number of ticks taken.
func (c *Core) NowTick() uint64 { return c.now }

// Step runs at most one runnable task step, round-robin. It reports whether
// a task ran.
func (c *Core) Step() bool {
	for i := TaskID(0); i < c.taskCount; i++ {
		id := (c.rr + i) % c.taskCount
		st := &c.tasks[id]
		if st.task == nil || !st.runnable {
			continue
		}

		c.rr = (id + 1) % c.taskCount
		c.current = id
		ctx := &Context{c: c, taskID: id}
		st.task.Step(ctx)

		if ctx.blockOnTick {
			st.runnable = false
			c.tickWaitMask |= 1 << id
		}
		return true
	}
	return false
}

// Tick advances the core's tick count and wakes tasks blocked via
// Context.BlockOnTick.
func (c *Core) Tick() {
	c.now++
	wait := c.tickWaitMask
	if wait == 0 {
		return
	}
	for tid := TaskID(0); tid < c.taskCount; tid++ {
		if wait&(1<<tid) != 0 {
			c.tasks[tid].runnable = true
		}
	}
	c.tickWaitMask = 0
}

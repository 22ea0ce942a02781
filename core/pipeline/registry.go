package pipeline

import (
	"sync"
	"time"

	"ClearFM/model"
)

// ProgressEvent 任务进度事件，推送给 WebSocket 订阅者
type ProgressEvent struct {
	JobID   string         `json:"jobId"`
	State   model.JobState `json:"state"`
	Message string         `json:"message,omitempty"`
}

// JobStatus 注册表中一个任务的运行时状态
type JobStatus struct {
	JobID        string         `json:"jobId"`
	SourceKey    string         `json:"sourceKey"`
	TargetFolder string         `json:"targetFolder"`
	State        model.JobState `json:"state"`
	Error        string         `json:"error,omitempty"`
	StartTime    time.Time      `json:"startTime"`
}

// Registry 任务状态注册表 - 线程安全
// 持有运行中与近期结束任务的内存状态，并向订阅者扇出进度事件
type Registry struct {
	mu          sync.RWMutex
	jobs        map[string]*JobStatus
	subscribers map[string][]chan ProgressEvent
}

// NewRegistry 创建任务注册表
func NewRegistry() *Registry {
	return &Registry{
		jobs:        make(map[string]*JobStatus),
		subscribers: make(map[string][]chan ProgressEvent),
	}
}

// TryLock 尝试登记一个新任务
// 同一任务ID已在运行时返回 false
func (r *Registry) TryLock(jobID, sourceKey, targetFolder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[jobID]; ok && !existing.State.Terminal() {
		return false
	}
	r.jobs[jobID] = &JobStatus{
		JobID:        jobID,
		SourceKey:    sourceKey,
		TargetFolder: targetFolder,
		State:        model.JobQueued,
		StartTime:    time.Now(),
	}
	return true
}

// Release 任务结束后移除登记，保留终态一段时间由调用方决定
func (r *Registry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// Get 获取任务状态快照，不存在时返回 nil
func (r *Registry) Get(jobID string) *JobStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	snapshot := *status
	return &snapshot
}

// SetState 更新任务状态并向订阅者广播
func (r *Registry) SetState(jobID string, state model.JobState, errMsg string) {
	r.mu.Lock()
	if status, ok := r.jobs[jobID]; ok {
		status.State = state
		if errMsg != "" {
			status.Error = errMsg
		}
	}
	subs := append([]chan ProgressEvent(nil), r.subscribers[jobID]...)
	r.mu.Unlock()

	event := ProgressEvent{JobID: jobID, State: state, Message: errMsg}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// 订阅者消费过慢，丢弃事件
		}
	}
}

// Subscribe 订阅任务进度，返回事件通道和取消函数
func (r *Registry) Subscribe(jobID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)

	r.mu.Lock()
	r.subscribers[jobID] = append(r.subscribers[jobID], ch)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		subs := r.subscribers[jobID]
		for i, c := range subs {
			if c == ch {
				r.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(r.subscribers[jobID]) == 0 {
			delete(r.subscribers, jobID)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

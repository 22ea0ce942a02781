package pipeline

import (
	"context"
	"sync"

	"ClearFM/logger"
	"ClearFM/model"
)

// errManagerStopped 停机后对排队中与新到请求的统一答复
const errManagerStopped = "conversion manager stopped"

// convertRequest 队列中的一次转换请求
type convertRequest struct {
	sourceKey    string
	targetFolder string
	resultChan   chan *model.JobResult
}

// Manager 转换任务队列与工作池
// Enqueue 异步投递，ConvertSync 同步等待结果
type Manager struct {
	processor   *Processor
	requestChan chan *convertRequest
	workerCount int
	wg          sync.WaitGroup
	stopChan    chan struct{}
	doneChan    chan struct{}
	stopOnce    sync.Once
}

// NewManager 创建任务管理器并启动工作池
func NewManager(processor *Processor, workers int) *Manager {
	if workers <= 0 {
		workers = 2
	}
	m := &Manager{
		processor:   processor,
		requestChan: make(chan *convertRequest, 32),
		workerCount: workers,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	m.startWorkers()
	return m
}

// startWorkers 启动工作协程池
func (m *Manager) startWorkers() {
	for i := 0; i < m.workerCount; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	go func() {
		m.wg.Wait()
		close(m.doneChan)
	}()
}

// worker 工作协程，逐个消费转换请求
func (m *Manager) worker(workerID int) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopChan:
			m.drain()
			return
		case req := <-m.requestChan:
			logger.Debug("工作协程领取任务",
				logger.Int("worker", workerID),
				logger.String("sourceKey", req.sourceKey))

			result := m.processor.Convert(context.Background(), req.sourceKey, req.targetFolder)
			if req.resultChan != nil {
				req.resultChan <- result
			}
		}
	}
}

// drain 停机时排空已入队的请求，让同步等待者拿到明确结果
func (m *Manager) drain() {
	for {
		select {
		case req := <-m.requestChan:
			if req.resultChan != nil {
				req.resultChan <- &model.JobResult{Success: false, Error: errManagerStopped}
			}
		default:
			return
		}
	}
}

// Enqueue 异步投递转换请求，队列满或已停机时返回 false
func (m *Manager) Enqueue(sourceKey, targetFolder string) bool {
	select {
	case <-m.stopChan:
		return false
	case m.requestChan <- &convertRequest{sourceKey: sourceKey, targetFolder: targetFolder}:
		return true
	default:
		logger.Warn("转换队列已满，拒绝请求",
			logger.String("sourceKey", sourceKey))
		return false
	}
}

// ConvertSync 同步执行转换并等待结果
func (m *Manager) ConvertSync(ctx context.Context, sourceKey, targetFolder string) *model.JobResult {
	resultChan := make(chan *model.JobResult, 1)
	req := &convertRequest{
		sourceKey:    sourceKey,
		targetFolder: targetFolder,
		resultChan:   resultChan,
	}

	select {
	case m.requestChan <- req:
	case <-m.stopChan:
		return &model.JobResult{Success: false, Error: errManagerStopped}
	case <-ctx.Done():
		return &model.JobResult{Success: false, Error: "conversion queue unavailable: " + ctx.Err().Error()}
	}

	select {
	case result := <-resultChan:
		return result
	case <-ctx.Done():
		return &model.JobResult{Success: false, Error: "conversion wait aborted: " + ctx.Err().Error()}
	case <-m.doneChan:
		// 关闭竞态：工作协程可能已经写入过结果
		select {
		case result := <-resultChan:
			return result
		default:
			return &model.JobResult{Success: false, Error: errManagerStopped}
		}
	}
}

// Registry 返回底层任务注册表
func (m *Manager) Registry() *Registry {
	return m.processor.Registry()
}

// Stop 停止工作池，等待在途任务完成并排空队列
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
	m.drain()
}

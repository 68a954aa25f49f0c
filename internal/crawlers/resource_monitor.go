package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: daemon模式下周期采样内存和CPU,评估压力等级,为域名工作器并发数提供建议
// 建议是参考性的,调度器只在启动和诊断日志里使用,不会中途杀掉工作器
type ResourceMonitor struct {
	// 配置参数
	config ResourceMonitorConfig

	// 缓存的内存统计数据
	lastMemStats runtime.MemStats

	// 系统总内存(字节)
	totalMemory uint64

	// 缓存的RecommendedWorkers结果(每秒更新一次)
	cachedWorkers int
	lastCacheTime time.Time
	cacheMu       sync.RWMutex // 保护缓存的读写锁

	// CPU使用率监控
	lastCPUUsage float64
	cpuUsageMu   sync.RWMutex // 保护CPU使用率的读写锁

	// 保护lastMemStats的读写锁
	mu sync.RWMutex

	// 监控控制
	cancelFunc context.CancelFunc
	isRunning  bool
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SafetyThreshold     int64 // 安全阈值(字节)
	CPULoadThreshold    int   // CPU负载阈值(%)
	MaxWorkersLimit     int   // 绝对最大工作器数
	WorkerMemoryUsage   int64 // 单个工作器平均内存消耗(字节)
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64 // 系统总内存(字节)
	AllocatedMemory uint64 // 当前程序已分配内存(字节)
	AvailableMemory int64  // 可用内存(字节)
	SafetyReserve   int64  // 安全保留内存(字节)
	SafetyThreshold int64  // 安全阈值(字节)
	MemoryPressure  string // 内存压力等级
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	// 初始化默认值
	if config.WorkerMemoryUsage == 0 {
		config.WorkerMemoryUsage = 32 * 1024 * 1024 // 32MB
	}

	// 获取系统总内存(使用gopsutil获取真实系统内存)
	vmStat, err := mem.VirtualMemory()
	var totalMem uint64
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,使用默认值")
		totalMem = 4 * 1024 * 1024 * 1024 // 默认4GB
		log.Info().Msgf("系统总内存: 4.00 GB (默认值)")
	} else {
		totalMem = vmStat.Total
		log.Info().Msgf("系统总内存: %.2f GB", float64(totalMem)/(1024*1024*1024))
	}

	// 读取初始内存统计
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &ResourceMonitor{
		config:       config,
		totalMemory:  totalMem,
		lastMemStats: memStats,
		isRunning:    false,
	}
}

// StartMonitoring 启动资源监控
// 启动后台goroutine周期性采样runtime.MemStats和CPU使用率
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	// 采样间隔必须为正,未配置时按30秒
	if interval <= 0 {
		interval = 30 * time.Second
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	// 已经在运行时直接返回(幂等)
	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.monitoringLoop(ctx, interval)
}

// monitoringLoop 后台监控循环
func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 采样内存统计
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			rm.mu.Lock()
			rm.lastMemStats = memStats
			rm.mu.Unlock()

			// 更新CPU使用率
			cpuUsage := rm.getCPUUsage()
			rm.cpuUsageMu.Lock()
			rm.lastCPUUsage = cpuUsage
			rm.cpuUsageMu.Unlock()

			rm.logPressure()
		}
	}
}

// logPressure 内存压力异常时输出诊断日志
func (rm *ResourceMonitor) logPressure() {
	status := rm.GetMemoryStatus()
	availableMB := status.AvailableMemory / (1024 * 1024)

	switch status.MemoryPressure {
	case "emergency", "critical":
		log.Error().Msgf("内存压力等级 %s (可用%dMB),建议减少并发域名数", status.MemoryPressure, availableMB)
	case "warning":
		log.Warn().Msgf("内存压力等级 warning (可用%dMB)", availableMB)
	}
}

// getCPUUsage 获取系统CPU使用率(百分比)
func (rm *ResourceMonitor) getCPUUsage() float64 {
	// 100毫秒采样间隔,避免阻塞过久
	// perCPU=false 返回所有CPU的平均使用率
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
		return 0.0
	}

	if len(percentages) == 0 {
		log.Warn().Msg("CPU使用率数据为空")
		return 0.0
	}

	return percentages[0]
}

// StopMonitoring 停止资源监控
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

// RecommendedWorkers 动态计算当前建议的工作器并发数
// 结果缓存1秒,基于可用内存和CPU核心数取较小值
func (rm *ResourceMonitor) RecommendedWorkers() int {
	// 检查缓存是否有效(1秒内)
	rm.cacheMu.RLock()
	if time.Since(rm.lastCacheTime) < time.Second && rm.cachedWorkers > 0 {
		cached := rm.cachedWorkers
		rm.cacheMu.RUnlock()
		return cached
	}
	rm.cacheMu.RUnlock()

	// 缓存失效,重新计算
	rm.mu.RLock()
	memStats := rm.lastMemStats
	rm.mu.RUnlock()

	allocatedMemory := memStats.Alloc
	availableMemory := int64(rm.totalMemory) - int64(allocatedMemory) - rm.config.SafetyReserveMemory

	// 基于内存计算上限
	workersByMemory := 1
	if availableMemory > rm.config.SafetyThreshold {
		surplus := availableMemory - rm.config.SafetyThreshold
		workersByMemory = int(surplus / rm.config.WorkerMemoryUsage)
		if workersByMemory < 1 {
			workersByMemory = 1
		}
	}

	// 基于CPU核心数计算上限
	workersByCPU := runtime.NumCPU()

	// 取最小值
	result := workersByMemory
	if workersByCPU < result {
		result = workersByCPU
	}
	if rm.config.MaxWorkersLimit > 0 && rm.config.MaxWorkersLimit < result {
		result = rm.config.MaxWorkersLimit
	}

	// 至少1个工作器
	if result < 1 {
		result = 1
	}

	// 更新缓存
	rm.cacheMu.Lock()
	rm.cachedWorkers = result
	rm.lastCacheTime = time.Now()
	rm.cacheMu.Unlock()

	return result
}

// CheckResourceAvailability 检查当前资源是否允许并发运行更多工作器
// 返回canRun(是否允许)和reason(不允许时的原因)
func (rm *ResourceMonitor) CheckResourceAvailability() (canRun bool, reason string) {
	rm.mu.RLock()
	memStats := rm.lastMemStats
	rm.mu.RUnlock()

	allocatedMemory := memStats.Alloc
	availableMemory := int64(rm.totalMemory) - int64(allocatedMemory) - rm.config.SafetyReserveMemory

	// 检查内存
	if availableMemory < rm.config.SafetyThreshold {
		availableMemoryMB := availableMemory / (1024 * 1024)
		log.Warn().Msgf("可用内存不足(当前%dMB),工作器并发受限", availableMemoryMB)
		return false, fmt.Sprintf("内存不足(当前%dMB)", availableMemoryMB)
	}

	// 检查CPU负载
	// 配置的阈值 >= 200 时跳过CPU检查(视为禁用)
	if rm.config.CPULoadThreshold < 200 {
		rm.cpuUsageMu.RLock()
		cpuUsage := rm.lastCPUUsage
		rm.cpuUsageMu.RUnlock()

		if cpuUsage > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
		}
	}

	return true, ""
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	rm.mu.RLock()
	memStats := rm.lastMemStats
	rm.mu.RUnlock()

	allocatedMemory := memStats.Alloc
	availableMemory := int64(rm.totalMemory) - int64(allocatedMemory) - rm.config.SafetyReserveMemory

	// 判断内存压力等级
	var pressure string
	availableMemoryMB := availableMemory / (1024 * 1024)
	switch {
	case availableMemoryMB < 200:
		pressure = "emergency"
	case availableMemoryMB < 300:
		pressure = "critical"
	case availableMemoryMB < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     rm.totalMemory,
		AllocatedMemory: allocatedMemory,
		AvailableMemory: availableMemory,
		SafetyReserve:   rm.config.SafetyReserveMemory,
		SafetyThreshold: rm.config.SafetyThreshold,
		MemoryPressure:  pressure,
	}
}

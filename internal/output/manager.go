package output

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/hanzo/internal/utils"
)

// DownloadOutput is one display row plus the stream lines shown under it.
type DownloadOutput struct {
	ID          int
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Name  string
	Error error
	Time  time.Time
}

// Manager renders download rows in place, redrawing the block of lines it
// owns a few times per second.
type Manager struct {
	outputs     map[int]*DownloadOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int // Max stream lines kept per row
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	count       int
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		outputs:     make(map[int]*DownloadOutput),
		errors:      []ErrorReport{},
		maxStreams:  6,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.count++
	m.outputs[m.count] = &DownloadOutput{
		ID:          m.count,
		Name:        name,
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.count
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

// Progress replaces the row's stream with a live progress bar line.
func (m *Manager) Progress(id int, read, total int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[id]
	if !exists {
		return
	}
	if read < 0 {
		read = 0
	}
	sizes := utils.FormatBytes(uint64(read))
	if total > 0 {
		sizes = fmt.Sprintf("%s / %s", sizes, utils.FormatBytes(uint64(total)))
	}
	elapsed := time.Since(info.StartTime).Round(time.Second).Seconds()
	display := fmt.Sprintf("%s%s %s %s", PrintProgressBar(read, total, 30),
		debugStyle.Render(sizes), StyleSymbols["bullet"], debugStyle.Render(utils.FormatSpeed(read, elapsed)))
	info.StreamLines = []string{display}
	info.LastUpdated = time.Now()
}

func (m *Manager) AddStreamLine(id int, line string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = append(info.StreamLines, wrapText(line, 6)...)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) Complete(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = []string{}
		if message == "" {
			message = fmt.Sprintf("Completed %s", info.Name)
		}
		info.Message = message
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = []string{}
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{
			Name:  info.Name,
			Error: err,
			Time:  time.Now(),
		})
	}
}

func (m *Manager) statusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sortOutputs() (active, pending, completed []*DownloadOutput) {
	all := make([]*DownloadOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	// Registration order
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})
	for _, f := range all {
		switch {
		case f.Complete:
			completed = append(completed, f)
		case f.Status == "pending" && f.Message == "":
			pending = append(pending, f)
		default:
			active = append(active, f)
		}
	}
	return active, pending, completed
}

func (m *Manager) renderRow(info *DownloadOutput, lineCount, availableLines int) int {
	if lineCount >= availableLines {
		return lineCount
	}
	elapsed := time.Since(info.StartTime).Round(time.Second)
	if info.Complete {
		elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
	}
	message := info.Message
	if info.Error != nil {
		message = fmt.Sprintf("%s: %v", info.Name, info.Error)
	}
	var styled string
	switch info.Status {
	case "success":
		styled = successStyle.Render(message)
	case "error":
		styled = errorStyle.Render(message)
	case "warning":
		styled = warningStyle.Render(message)
	default:
		styled = pendingStyle.Render(message)
	}
	fmt.Printf("  %s %s %s\n", m.statusIndicator(info.Status), debugStyle.Render(elapsed.String()), styled)
	lineCount++
	indent := strings.Repeat(" ", 6)
	for _, line := range info.StreamLines {
		if lineCount >= availableLines {
			break
		}
		fmt.Printf("%s%s\n", indent, streamStyle.Render(line))
		lineCount++
	}
	return lineCount
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	availableLines := getTerminalHeight() - 3 // Leave some buffer for prompt
	if m.numLines > 0 {
		fmt.Printf("\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	active, pending, completed := m.sortOutputs()

	// Keep completed rows from crowding out live ones
	totalNeeded := len(completed)
	for _, f := range active {
		totalNeeded += 1 + len(f.StreamLines)
	}
	totalNeeded += len(pending)
	if totalNeeded > availableLines {
		maxCompleted := max(availableLines-(totalNeeded-len(completed)), 0)
		if len(completed) > maxCompleted {
			completed = completed[len(completed)-maxCompleted:]
		}
	}

	for _, f := range active {
		lineCount = m.renderRow(f, lineCount, availableLines)
	}
	for _, f := range pending {
		if lineCount >= availableLines {
			break
		}
		fmt.Printf("  %s %s\n", m.statusIndicator(f.Status), pendingStyle.Render("Waiting..."))
		lineCount++
	}
	if len(completed) > 10 && lineCount < availableLines {
		PrintInfo(fmt.Sprintf("  %d downloads completed with hidden status ...", len(completed)-8))
		completed = completed[len(completed)-8:]
		lineCount++
	}
	for _, f := range completed {
		lineCount = m.renderRow(f, lineCount, availableLines)
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.clearStreams()
				m.updateDisplay()
				m.showSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) clearStreams() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id := range m.outputs {
		m.outputs[id].StreamLines = []string{}
	}
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("  " + errorStyle.Bold(true).Render("Errors:"))
	for i, report := range m.errors {
		fmt.Printf("    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
			errorStyle.Render(report.Name))
		fmt.Printf("      %s\n", errorStyle.Render(fmt.Sprintf("Error: %v", report.Error)))
	}
}

func (m *Manager) showSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Println()
	var success, failures int
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	fmt.Println("  " + success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Println("  " + errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Println()
}

package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// RenewOutputPath returns a non-colliding variant of outputPath by
// appending -(1), -(2), ... before the extension.
func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

// InferOutputPath derives a destination file name from the last path
// segment of a link.
func InferOutputPath(link string) string {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Path == "" {
		return "download"
	}
	parts := strings.Split(strings.TrimSuffix(parsed.Path, "/"), "/")
	name := parts[len(parts)-1]
	if name == "" {
		return "download"
	}
	return name
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	formatted := FormatBytes(uint64(bps))
	return formatted[:len(formatted)-1] + "B/s" // Slice off "B" and add "B/s"
}

// ReadDownloadList parses a batch file of the form:
//
//	downloads:
//	  - link: https://example.com/file.bin
//	    op: file.bin
//	    resume: true
//
// Entries without a link are dropped.
func ReadDownloadList(path string) ([]DownloadEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading download list: %v", err)
	}
	var list struct {
		Downloads []DownloadEntry `yaml:"downloads"`
	}
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("error parsing download list: %v", err)
	}
	var entries []DownloadEntry
	for _, entry := range list.Downloads {
		if entry.URL == "" {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, errors.New("no valid entries in download list")
	}
	return entries, nil
}

// Clean removes leftover partial download artifacts. A directory argument
// sweeps its immediate entries; a file argument removes that file's own
// artifact.
func Clean(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), TempFileSuffix) {
				continue
			}
			if err := os.Remove(filepath.Join(path, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	temp := path + TempFileSuffix
	if _, err := os.Stat(temp); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(temp)
}

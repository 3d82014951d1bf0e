package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// RunFFmpeg 执行FFmpeg命令，返回标准输出
func RunFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	return runTool(ctx, "ffmpeg", args)
}

// RunFFprobe 执行ffprobe命令，返回标准输出
func RunFFprobe(ctx context.Context, args []string) ([]byte, error) {
	return runTool(ctx, "ffprobe", args)
}

func runTool(ctx context.Context, tool string, args []string) ([]byte, error) {
	path, err := exec.LookPath(tool)
	if err != nil {
		return nil, fmt.Errorf("%s未找到，请确保已安装并在PATH中: %w", tool, err)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = os.Environ()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s执行失败: %w\n输出: %s", tool, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// FileExists 检查文件是否存在
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// EnsureDir 确保目录存在
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// ListVideoFiles 列出目录下指定扩展名的视频文件（不递归），按文件名排序
func ListVideoFiles(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取视频目录失败 %s: %w", dir, err)
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

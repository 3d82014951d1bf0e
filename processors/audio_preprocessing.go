package processors

import (
	"strconv"
	"strings"
)

// AudioPreprocessConfig 转写前的语音预处理
type AudioPreprocessConfig struct {
	// Denoise 高通/低通滤波，保留人声频段
	Denoise bool
	// Normalize 动态音量标准化
	Normalize bool
	// HighpassHz / LowpassHz 人声频段
	HighpassHz int
	LowpassHz  int
}

// DefaultAudioPreprocessConfig 默认开启降噪与标准化
func DefaultAudioPreprocessConfig() AudioPreprocessConfig {
	return AudioPreprocessConfig{
		Denoise:    true,
		Normalize:  true,
		HighpassHz: 200,
		LowpassHz:  3000,
	}
}

// FilterChain 生成 ffmpeg -af 参数，空串表示不处理
func (c AudioPreprocessConfig) FilterChain() string {
	var filters []string
	if c.Denoise {
		if c.HighpassHz > 0 {
			filters = append(filters, "highpass=f="+strconv.Itoa(c.HighpassHz))
		}
		if c.LowpassHz > 0 && c.LowpassHz > c.HighpassHz {
			filters = append(filters, "lowpass=f="+strconv.Itoa(c.LowpassHz))
		}
	}
	if c.Normalize {
		// 动态音频标准化参数
		filters = append(filters, "dynaudnorm=p=0.95:m=100:s=12:g=15")
	}
	return strings.Join(filters, ",")
}

// ffmpegArgs 插入到输出参数之前
func (c AudioPreprocessConfig) ffmpegArgs() []string {
	chain := c.FilterChain()
	if chain == "" {
		return nil
	}
	return []string{"-af", chain}
}

package processors

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVInfo PCM 参数
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func (w WAVInfo) bytesPerSecond() int {
	return w.SampleRate * w.Channels * w.BitsPerSample / 8
}

var errInvalidWAV = errors.New("invalid wav data")

// EncodeWAV 为 PCM 数据加上 44 字节 RIFF 头
func EncodeWAV(pcm []byte, info WAVInfo) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	blockAlign := info.Channels * info.BitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(info.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(info.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(info.bytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(info.BitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV 解析 RIFF/WAVE，返回 PCM 数据与参数
func DecodeWAV(data []byte) ([]byte, WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, info, errInvalidWAV
	}
	var pcm []byte
	foundFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, info, fmt.Errorf("%w: short fmt chunk", errInvalidWAV)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			foundFmt = true
		case "data":
			pcm = data[body:end]
		}
		// 块按偶数字节对齐
		pos = body + size + size%2
	}
	if !foundFmt || info.bytesPerSecond() == 0 {
		return nil, info, fmt.Errorf("%w: missing fmt chunk", errInvalidWAV)
	}
	return pcm, info, nil
}

// WAVDuration 音频时长（秒）
func WAVDuration(pcm []byte, info WAVInfo) float64 {
	bps := info.bytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(len(pcm)) / float64(bps)
}

// SplitWAV 按 chunkSeconds 切分，每段都是完整的 WAV
func SplitWAV(pcm []byte, info WAVInfo, chunkSeconds float64) [][]byte {
	blockAlign := info.Channels * info.BitsPerSample / 8
	chunkBytes := int(chunkSeconds * float64(info.bytesPerSecond()))
	if blockAlign > 0 {
		chunkBytes -= chunkBytes % blockAlign
	}
	if chunkBytes <= 0 {
		return [][]byte{EncodeWAV(pcm, info)}
	}
	var chunks [][]byte
	for start := 0; start < len(pcm); start += chunkBytes {
		end := start + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		chunks = append(chunks, EncodeWAV(pcm[start:end], info))
	}
	return chunks
}

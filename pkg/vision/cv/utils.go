package cv

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrIO 读取图像文件失败
	ErrIO = errors.New("读取图像失败")
	// ErrDecode 图像解码失败
	ErrDecode = errors.New("图像解码失败")
)

// ReadImage 读取图像文件（png/jpeg/gif/bmp/tiff/webp 或 base64 data URL）
func ReadImage(filename string) (image.Image, error) {
	if strings.HasPrefix(filename, "data:image/") {
		return DecodeImageData(filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIO, filename, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, filename, err)
	}
	return img, nil
}

// ReadImageGray 读取灰度图像
func ReadImageGray(filename string) (*Gray, error) {
	img, err := ReadImage(filename)
	if err != nil {
		return nil, err
	}
	return GrayFromImage(img), nil
}

// DecodeImageData 解码 base64 图像，支持 data URL 或纯 base64 字符串
func DecodeImageData(data string) (image.Image, error) {
	payload := data
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: 无效的 data URL", ErrDecode)
		}
		payload = payload[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrDecode, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, nil
}

// EncodePNGData 将图像编码为 PNG base64 data URL
func EncodePNGData(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("PNG 编码失败: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// WriteImage 保存为 PNG 文件
func WriteImage(filename string, img image.Image) error {
	// 确保目录存在
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("保存图像失败: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("保存图像失败: %s: %w", filename, err)
	}
	return nil
}

// LoadGrayInput 加载灰度图像输入
// 支持 string (文件路径或 data URL)、image.Image、*Gray
func LoadGrayInput(input interface{}) (*Gray, error) {
	switch v := input.(type) {
	case string:
		return ReadImageGray(v)
	case *Gray:
		if v.Empty() {
			return nil, ErrEmptyImage
		}
		return v, nil
	case image.Image:
		return GrayFromImage(v), nil
	default:
		return nil, fmt.Errorf("不支持的图像输入类型: %T", input)
	}
}

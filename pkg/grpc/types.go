package grpc

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// Version 版本号
const Version = "0.3.0"

// SystemInfo 系统信息
type SystemInfo struct {
	Hostname      string `json:"hostname"`
	Platform      string `json:"platform"`
	OSVersion     string `json:"os_version"`
	ServerVersion string `json:"server_version"`
	Workers       int    `json:"workers"`
}

// GetSystemInfo 获取当前系统信息
func GetSystemInfo() *SystemInfo {
	hostname, _ := os.Hostname()

	platform := strings.ToUpper(runtime.GOOS)
	if platform == "DARWIN" {
		platform = "MACOS"
	}

	osVersion := runtime.GOOS + "/" + runtime.GOARCH
	if info, err := host.Info(); err == nil && info.PlatformVersion != "" {
		osVersion = fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, runtime.GOARCH)
	}

	return &SystemInfo{
		Hostname:      hostname,
		Platform:      platform,
		OSVersion:     osVersion,
		ServerVersion: Version,
		Workers:       cv.DefaultWorkers(),
	}
}

// toStruct 转换为消息
func (s *SystemInfo) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"hostname":       s.Hostname,
		"platform":       s.Platform,
		"os_version":     s.OSVersion,
		"server_version": s.ServerVersion,
		"workers":        s.Workers,
	})
}

func systemInfoFromStruct(st *structpb.Struct) *SystemInfo {
	f := st.GetFields()
	return &SystemInfo{
		Hostname:      f["hostname"].GetStringValue(),
		Platform:      f["platform"].GetStringValue(),
		OSVersion:     f["os_version"].GetStringValue(),
		ServerVersion: f["server_version"].GetStringValue(),
		Workers:       int(f["workers"].GetNumberValue()),
	}
}

// MatchRequest 匹配请求
// Source、Template 为 base64 或 data URL 编码的图像，数值参数为 nil 时使用服务端配置
type MatchRequest struct {
	Source          string
	Template        string
	Levels          *int
	CoarseThreshold *float64
	FinalThreshold  *float64
	MaxResults      *int
}

// Int 返回 v 的指针，用于填充可选参数
func Int(v int) *int { return &v }

// Float 返回 v 的指针，用于填充可选参数
func Float(v float64) *float64 { return &v }

// toStruct 编码为消息
func (r *MatchRequest) toStruct() (*structpb.Struct, error) {
	m := map[string]interface{}{
		"source":   r.Source,
		"template": r.Template,
	}
	if r.Levels != nil {
		m["levels"] = *r.Levels
	}
	if r.CoarseThreshold != nil {
		m["coarse_threshold"] = *r.CoarseThreshold
	}
	if r.FinalThreshold != nil {
		m["final_threshold"] = *r.FinalThreshold
	}
	if r.MaxResults != nil {
		m["max_results"] = *r.MaxResults
	}
	return structpb.NewStruct(m)
}

// matchRequestFromStruct 解码消息
func matchRequestFromStruct(st *structpb.Struct) (*MatchRequest, error) {
	f := st.GetFields()
	req := &MatchRequest{
		Source:   f["source"].GetStringValue(),
		Template: f["template"].GetStringValue(),
	}
	if req.Source == "" || req.Template == "" {
		return nil, fmt.Errorf("缺少 source 或 template")
	}

	intField := func(key string) (*int, error) {
		v, ok := f[key]
		if !ok {
			return nil, nil
		}
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum || n.NumberValue != float64(int(n.NumberValue)) {
			return nil, fmt.Errorf("%s 必须为整数", key)
		}
		return Int(int(n.NumberValue)), nil
	}
	floatField := func(key string) (*float64, error) {
		v, ok := f[key]
		if !ok {
			return nil, nil
		}
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum {
			return nil, fmt.Errorf("%s 必须为数值", key)
		}
		return Float(n.NumberValue), nil
	}

	var err error
	if req.Levels, err = intField("levels"); err != nil {
		return nil, err
	}
	if req.MaxResults, err = intField("max_results"); err != nil {
		return nil, err
	}
	if req.CoarseThreshold, err = floatField("coarse_threshold"); err != nil {
		return nil, err
	}
	if req.FinalThreshold, err = floatField("final_threshold"); err != nil {
		return nil, err
	}
	return req, nil
}

// MatchResponse 匹配响应
type MatchResponse struct {
	RequestID  string              `json:"request_id"`
	Found      bool                `json:"found"`
	Completed  bool                `json:"completed"`
	Depth      int                 `json:"depth"`
	StoppedAt  int                 `json:"stopped_at"`
	ElapsedMs  float64             `json:"elapsed_ms"`
	Template   [2]int              `json:"template"`
	Candidates []cv.MatchCandidate `json:"candidates"`
	Levels     []cv.LevelStats     `json:"levels"`
}

// newMatchResponse 由匹配报告构造响应
func newMatchResponse(requestID string, report *cv.MatchReport) *MatchResponse {
	return &MatchResponse{
		RequestID:  requestID,
		Found:      report.Found(),
		Completed:  report.Completed,
		Depth:      report.Depth,
		StoppedAt:  report.StoppedAt,
		ElapsedMs:  float64(report.Elapsed.Microseconds()) / 1000,
		Template:   [2]int{report.TemplateSize.X, report.TemplateSize.Y},
		Candidates: report.Candidates,
		Levels:     report.Levels,
	}
}

// toStruct 编码为消息
func (r *MatchResponse) toStruct() (*structpb.Struct, error) {
	cands := make([]interface{}, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		cands = append(cands, map[string]interface{}{
			"x":     c.X,
			"y":     c.Y,
			"score": c.Score,
		})
	}
	levels := make([]interface{}, 0, len(r.Levels))
	for _, l := range r.Levels {
		levels = append(levels, map[string]interface{}{
			"level":      l.Level,
			"width":      l.Width,
			"height":     l.Height,
			"rois":       l.ROIs,
			"retained":   l.Retained,
			"elapsed_ms": float64(l.Elapsed.Microseconds()) / 1000,
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"request_id": r.RequestID,
		"found":      r.Found,
		"completed":  r.Completed,
		"depth":      r.Depth,
		"stopped_at": r.StoppedAt,
		"elapsed_ms": r.ElapsedMs,
		"template":   []interface{}{r.Template[0], r.Template[1]},
		"candidates": cands,
		"levels":     levels,
	})
}

// matchResponseFromStruct 解码消息
func matchResponseFromStruct(st *structpb.Struct) *MatchResponse {
	f := st.GetFields()
	resp := &MatchResponse{
		RequestID:  f["request_id"].GetStringValue(),
		Found:      f["found"].GetBoolValue(),
		Completed:  f["completed"].GetBoolValue(),
		Depth:      int(f["depth"].GetNumberValue()),
		StoppedAt:  int(f["stopped_at"].GetNumberValue()),
		ElapsedMs:  f["elapsed_ms"].GetNumberValue(),
		Candidates: []cv.MatchCandidate{},
	}
	if tpl := f["template"].GetListValue().GetValues(); len(tpl) == 2 {
		resp.Template = [2]int{int(tpl[0].GetNumberValue()), int(tpl[1].GetNumberValue())}
	}
	for _, v := range f["candidates"].GetListValue().GetValues() {
		c := v.GetStructValue().GetFields()
		resp.Candidates = append(resp.Candidates, cv.MatchCandidate{
			X:     int(c["x"].GetNumberValue()),
			Y:     int(c["y"].GetNumberValue()),
			Score: c["score"].GetNumberValue(),
		})
	}
	for _, v := range f["levels"].GetListValue().GetValues() {
		l := v.GetStructValue().GetFields()
		resp.Levels = append(resp.Levels, cv.LevelStats{
			Level:    int(l["level"].GetNumberValue()),
			Width:    int(l["width"].GetNumberValue()),
			Height:   int(l["height"].GetNumberValue()),
			ROIs:     int(l["rois"].GetNumberValue()),
			Retained: int(l["retained"].GetNumberValue()),
		})
	}
	return resp
}

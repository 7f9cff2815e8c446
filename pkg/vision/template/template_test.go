package template

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/zoeyai/zoeyprobe/pkg/vision/cv"
)

// scoreFunc 按模板宽度打分的假 Scorer
type scoreFunc func(tpl gocv.Mat) float64

func (f scoreFunc) Score(_, tpl gocv.Mat) cv.MatchResult {
	s := f(tpl)
	return cv.MatchResult{Found: s >= cv.MatchThreshold, Score: s}
}

func constScore(v float64) scoreFunc {
	return func(gocv.Mat) float64 { return v }
}

func solidImage(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), h, w, gocv.MatTypeCV8UC3)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		label string
		score float64
		want  string
	}{
		{"확인", 0.8312, "확인_0.83.png"},
		{"Log in", 0.9, "Log_in_0.90.png"},
		{"OK", 1, "OK_1.00.png"},
	}
	for _, tt := range tests {
		if got := FileName(tt.label, tt.score); got != tt.want {
			t.Errorf("FileName(%q, %v) = %q, 期望 %q", tt.label, tt.score, got, tt.want)
		}
	}
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name  string
		label string
		score float64
		ok    bool
	}{
		{"확인_0.83.png", "확인", 0.83, true},
		{"A_B_0.90.png", "A_B", 0.90, true},
		{"Log_in_1.00.png", "Log_in", 1.0, true},
		{"noscore.png", "", 0, false},
		{"A_0.90.jpg", "", 0, false},
		{".pending-123", "", 0, false},
	}
	for _, tt := range tests {
		label, score, ok := ParseFileName(tt.name)
		if ok != tt.ok || label != tt.label || score != tt.score {
			t.Errorf("ParseFileName(%q) = (%q, %v, %v), 期望 (%q, %v, %v)",
				tt.name, label, score, ok, tt.label, tt.score, tt.ok)
		}
	}
}

func TestValidateLabel(t *testing.T) {
	for _, label := range []string{"", "   ", "a/b", `a\b`} {
		if err := ValidateLabel(label); err == nil {
			t.Errorf("标签 %q 应被拒绝", label)
		}
	}
	if err := ValidateLabel("다음"); err != nil {
		t.Errorf("合法标签被拒绝: %v", err)
	}
}

func TestScales(t *testing.T) {
	scales := Scales()
	if len(scales) != 21 {
		t.Fatalf("期望 21 个缩放比例, 实际 %d", len(scales))
	}
	if scales[0] != 0.5 || scales[20] != 1.5 || scales[10] != 1.0 {
		t.Errorf("缩放比例不正确: %v", scales)
	}
}

// openCaches 三种后端各一个
func openCaches(t *testing.T) map[string]Cache {
	t.Helper()

	disk, err := NewDiskCache(filepath.Join(t.TempDir(), "button_image"))
	if err != nil {
		t.Fatalf("创建磁盘缓存失败: %v", err)
	}
	mem := NewMemoryCache()
	t.Cleanup(func() { mem.Close() })

	db, err := OpenSQLiteCache(":memory:")
	if err != nil {
		t.Fatalf("打开 sqlite 缓存失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Cache{"disk": disk, "memory": mem, "sqlite": db}
}

func TestCacheExactLabel(t *testing.T) {
	for name, c := range openCaches(t) {
		t.Run(name, func(t *testing.T) {
			img := solidImage(20, 10)
			defer img.Close()

			if _, err := c.Put("A", img, 0.8); err != nil {
				t.Fatalf("Put 失败: %v", err)
			}
			if _, err := c.Put("A B", img, 0.9); err != nil {
				t.Fatalf("Put 失败: %v", err)
			}

			entries, err := c.Candidates("A")
			if err != nil {
				t.Fatalf("Candidates 失败: %v", err)
			}
			if len(entries) != 1 || entries[0].Score != 0.8 {
				t.Errorf("标签 A 不应包含 A_B 的模板: %+v", entries)
			}

			entries, _ = c.Candidates("A B")
			if len(entries) != 1 || entries[0].Score != 0.9 {
				t.Errorf("标签 \"A B\" 的模板不正确: %+v", entries)
			}
		})
	}
}

func TestPersistKeepsSingleTemplate(t *testing.T) {
	for name, c := range openCaches(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(c, constScore(0))
			for i, score := range []float64{0.71, 0.85, 0.77} {
				img := solidImage(20+i, 10)
				if _, err := store.Persist("확인", img, score); err != nil {
					img.Close()
					t.Fatalf("Persist 失败: %v", err)
				}
				img.Close()
			}

			entries, err := c.Candidates("확인")
			if err != nil {
				t.Fatalf("Candidates 失败: %v", err)
			}
			if len(entries) != 1 {
				t.Fatalf("期望 1 个模板, 实际 %d: %+v", len(entries), entries)
			}
			if entries[0].Score != 0.77 {
				t.Errorf("应保留最后保存的模板, 实际分数 %v", entries[0].Score)
			}

			tpl, err := c.Load(entries[0])
			if err != nil {
				t.Fatalf("Load 失败: %v", err)
			}
			defer tpl.Close()
			if tpl.Cols() != 22 || tpl.Rows() != 10 {
				t.Errorf("模板尺寸不正确: %dx%d", tpl.Cols(), tpl.Rows())
			}
		})
	}
}

func TestDiskCacheNoPendingFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDiskCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	img := solidImage(8, 8)
	defer img.Close()

	if _, err := c.Put("OK", img, 0.75); err != nil {
		t.Fatalf("Put 失败: %v", err)
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 1 || files[0].Name() != "OK_0.75.png" {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Name()
		}
		t.Errorf("目录中应只有 OK_0.75.png, 实际 %v", names)
	}
}

func TestFindBestNoTemplates(t *testing.T) {
	store := NewStore(NewMemoryCache(), constScore(1))
	screen := solidImage(100, 100)
	defer screen.Close()

	_, res, err := store.FindBest("없음", screen)
	if err != nil {
		t.Fatalf("FindBest 失败: %v", err)
	}
	if res.Found || res.Score != 0 {
		t.Errorf("没有模板时应返回零值结果: %+v", res)
	}
}

func TestFindBestPicksHighestFirst(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	// 宽度 10 和 30 同分，20 较低
	widths := map[int]float64{10: 0.9, 20: 0.5, 30: 0.9}
	for _, w := range []int{10, 20, 30} {
		img := solidImage(w, 10)
		if _, err := c.Put("btn", img, widths[w]); err != nil {
			t.Fatal(err)
		}
		img.Close()
	}

	store := NewStore(c, scoreFunc(func(tpl gocv.Mat) float64 { return widths[tpl.Cols()] }))
	screen := solidImage(100, 100)
	defer screen.Close()

	e, res, err := store.FindBest("btn", screen)
	if err != nil {
		t.Fatalf("FindBest 失败: %v", err)
	}
	if res.Score != 0.9 {
		t.Errorf("期望分数 0.9, 实际 %v", res.Score)
	}
	tpl, _ := c.Load(e)
	defer tpl.Close()
	if tpl.Cols() != 10 {
		t.Errorf("同分时应保留先出现的模板, 实际宽度 %d", tpl.Cols())
	}
}

func TestRender(t *testing.T) {
	s := NewSynthesizer(NewStore(NewMemoryCache(), constScore(0)), constScore(0))
	defer s.Close()

	img, err := s.Render("OK")
	if err != nil {
		t.Fatalf("Render 失败: %v", err)
	}
	defer img.Close()

	if img.Empty() {
		t.Fatal("渲染结果为空")
	}
	// 至少包含左右留白 2p+8 与上下留白 4p+10
	if img.Cols() <= 28 || img.Rows() <= 50 {
		t.Errorf("画布尺寸过小: %dx%d", img.Cols(), img.Rows())
	}

	if _, err := s.Render(""); err == nil {
		t.Error("空标签应返回错误")
	}
}

func TestSynthesizeSmallestScaleWinsTie(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	s := NewSynthesizer(NewStore(c, constScore(0)), constScore(0.9))
	defer s.Close()

	base, err := s.Render("다음")
	if err != nil {
		t.Fatal(err)
	}
	wantW := int(float64(base.Cols()) * 0.5)
	base.Close()

	screen := solidImage(400, 400)
	defer screen.Close()

	e, res, err := s.Synthesize("다음", screen)
	if err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	if !res.Found || res.Score != 0.9 {
		t.Errorf("结果不正确: %+v", res)
	}

	tpl, err := c.Load(e)
	if err != nil {
		t.Fatalf("读取合成模板失败: %v", err)
	}
	defer tpl.Close()
	if tpl.Cols() != wantW {
		t.Errorf("同分时应选最小缩放, 期望宽度 %d, 实际 %d", wantW, tpl.Cols())
	}
}

func TestSynthesizePicksBestScale(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()

	s := NewSynthesizer(NewStore(c, constScore(0)), constScore(0))
	defer s.Close()
	base, err := s.Render("OK")
	if err != nil {
		t.Fatal(err)
	}
	wantW := int(float64(base.Cols()) * 1.0)
	base.Close()

	// 宽度越接近 1.0 倍分数越高
	s.scorer = scoreFunc(func(tpl gocv.Mat) float64 {
		d := float64(tpl.Cols()-wantW) / float64(wantW)
		if d < 0 {
			d = -d
		}
		return 1 - d
	})

	screen := solidImage(400, 400)
	defer screen.Close()

	e, res, err := s.Synthesize("OK", screen)
	if err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	if res.Score != 1 {
		t.Errorf("期望分数 1, 实际 %v", res.Score)
	}
	if e.Score != 1 {
		t.Errorf("保存的分数应为 1, 实际 %v", e.Score)
	}

	entries, _ := c.Candidates("OK")
	if len(entries) != 1 {
		t.Errorf("合成后应只有一个模板, 实际 %d", len(entries))
	}
}

func TestSynthesizeAllZero(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	s := NewSynthesizer(NewStore(c, constScore(0)), constScore(0))
	defer s.Close()

	screen := solidImage(200, 200)
	defer screen.Close()

	_, _, err := s.Synthesize("OK", screen)
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("期望 ErrSynthesisFailed, 实际 %v", err)
	}
	if entries, _ := c.Candidates("OK"); len(entries) != 0 {
		t.Errorf("失败时不应保存模板: %+v", entries)
	}
}

func TestSynthesizeRealMatch(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDiskCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := cv.NewMatcher()
	s := NewSynthesizer(NewStore(c, m), m)
	defer s.Close()

	// 把 1.0 倍渲染结果贴到黑色截图上
	tpl, err := s.Render("Start")
	if err != nil {
		t.Fatal(err)
	}
	defer tpl.Close()

	screen := gocv.NewMatWithSize(600, 800, gocv.MatTypeCV8UC3)
	defer screen.Close()
	roi := screen.Region(image.Rect(200, 300, 200+tpl.Cols(), 300+tpl.Rows()))
	tpl.CopyTo(&roi)
	roi.Close()

	_, res, err := s.Synthesize("Start", screen)
	if err != nil {
		t.Fatalf("Synthesize 失败: %v", err)
	}
	if !res.Found || res.Score < 0.99 {
		t.Errorf("贴入原图后应高分命中: %+v", res)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "Start_*.png"))
	if len(files) != 1 {
		t.Errorf("期望磁盘上一个模板文件, 实际 %v", files)
	}
}

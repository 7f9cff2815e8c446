package cv

import (
	"errors"
	"image"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

// noiseImage 生成随机噪声图，保证模板在截图中只有一个最佳位置
func noiseImage(t *testing.T, w, h int) gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	gocv.RandU(&mat, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(255, 255, 255, 0))
	return mat
}

func crop(src gocv.Mat, r image.Rectangle) gocv.Mat {
	region := src.Region(r)
	defer region.Close()
	return region.Clone()
}

func TestMatchExactCrop(t *testing.T) {
	screen := noiseImage(t, 320, 240)
	defer screen.Close()
	tpl := crop(screen, image.Rect(100, 60, 160, 90))
	defer tpl.Close()

	res, err := NewMatcher().Match(screen, tpl)
	if err != nil {
		t.Fatalf("匹配失败: %v", err)
	}
	if !res.Found || res.Score < 0.99 {
		t.Fatalf("原图裁剪应完全匹配, 实际 %+v", res)
	}
	if res.Center != image.Pt(130, 75) {
		t.Errorf("中心点期望 (130, 75), 实际 %v", res.Center)
	}
}

func TestMatchGray(t *testing.T) {
	screen := noiseImage(t, 200, 200)
	defer screen.Close()
	tpl := crop(screen, image.Rect(10, 20, 50, 60))
	defer tpl.Close()

	res := NewMatcher(WithGray(true)).Score(screen, tpl)
	if !res.Found || res.Center != image.Pt(30, 40) {
		t.Errorf("灰度匹配结果不正确: %+v", res)
	}
}

func TestThresholdConsistency(t *testing.T) {
	screen := noiseImage(t, 240, 160)
	defer screen.Close()
	other := noiseImage(t, 240, 160)
	defer other.Close()

	exact := crop(screen, image.Rect(40, 40, 90, 80))
	defer exact.Close()
	unrelated := crop(other, image.Rect(40, 40, 90, 80))
	defer unrelated.Close()

	for _, threshold := range []float64{0.3, 0.7, 0.95} {
		m := NewMatcher(WithThreshold(threshold))
		for _, tpl := range []gocv.Mat{exact, unrelated} {
			res := m.Score(screen, tpl)
			if res.Found != (res.Score >= threshold) {
				t.Errorf("阈值 %.2f: Found=%v 与 Score=%.3f 不一致", threshold, res.Found, res.Score)
			}
			if res.Score < 0 || res.Score > 1 {
				t.Errorf("分数超出 [0,1]: %v", res.Score)
			}
		}
	}
}

func TestMatchTemplateLarger(t *testing.T) {
	screen := noiseImage(t, 50, 50)
	defer screen.Close()
	tpl := noiseImage(t, 80, 30)
	defer tpl.Close()

	_, err := NewMatcher().Match(screen, tpl)
	var sizeErr *ImageSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("期望 ImageSizeError, 实际 %v", err)
	}
	if sizeErr.SearchSize != [2]int{80, 30} {
		t.Errorf("SearchSize 不正确: %v", sizeErr.SearchSize)
	}

	if res := NewMatcher().Score(screen, tpl); res.Found || res.Score != 0 {
		t.Errorf("模板过大时分数应为 0, 实际 %+v", res)
	}
}

func TestScoreEmpty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	screen := noiseImage(t, 50, 50)
	defer screen.Close()

	if res := NewMatcher().Score(screen, empty); res.Score != 0 || res.Found {
		t.Errorf("空模板分数应为 0, 实际 %+v", res)
	}
}

func TestScoreFiles(t *testing.T) {
	dir := t.TempDir()
	screen := noiseImage(t, 160, 120)
	defer screen.Close()
	tpl := crop(screen, image.Rect(20, 20, 60, 50))
	defer tpl.Close()

	screenPath := filepath.Join(dir, "screen.png")
	tplPath := filepath.Join(dir, "nested", "tpl.png")
	if err := WriteImage(screenPath, screen); err != nil {
		t.Fatal(err)
	}
	if err := WriteImage(tplPath, tpl); err != nil {
		t.Fatal(err)
	}

	if res := NewMatcher().ScoreFiles(screenPath, tplPath); !res.Found {
		t.Errorf("文件匹配应成功: %+v", res)
	}
	if res := NewMatcher().ScoreFiles(screenPath, filepath.Join(dir, "missing.png")); res.Score != 0 {
		t.Errorf("不存在的模板分数应为 0, 实际 %v", res.Score)
	}
}

func TestExtractRegion(t *testing.T) {
	dir := t.TempDir()
	screen := noiseImage(t, 200, 150)
	defer screen.Close()
	tpl := crop(screen, image.Rect(70, 40, 115, 70))
	defer tpl.Close()

	screenPath := filepath.Join(dir, "screen.png")
	tplPath := filepath.Join(dir, "tpl.png")
	if err := WriteImage(screenPath, screen); err != nil {
		t.Fatal(err)
	}
	if err := WriteImage(tplPath, tpl); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "debug", "matched_crop.png")
	res, err := NewMatcher().ExtractRegion(screenPath, tplPath, out)
	if err != nil {
		t.Fatalf("提取匹配区域失败: %v", err)
	}
	if res.Rect != image.Rect(70, 40, 115, 70) {
		t.Errorf("匹配区域期望 (70,40)-(115,70), 实际 %v", res.Rect)
	}

	cropped, err := ReadImage(out)
	if err != nil {
		t.Fatalf("读取保存的区域失败: %v", err)
	}
	defer cropped.Close()
	if cropped.Cols() != tpl.Cols() || cropped.Rows() != tpl.Rows() {
		t.Errorf("保存区域尺寸应与模板一致 %dx%d, 实际 %dx%d", tpl.Cols(), tpl.Rows(), cropped.Cols(), cropped.Rows())
	}

	if _, err := NewMatcher().ExtractRegion(screenPath, filepath.Join(dir, "missing.png"), out); err == nil {
		t.Error("模板不存在时应返回错误")
	}
}

func TestEncodeDecodePNG(t *testing.T) {
	src := noiseImage(t, 32, 16)
	defer src.Close()

	data, err := EncodePNG(src)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := DecodeImage(data)
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()
	if dst.Cols() != 32 || dst.Rows() != 16 {
		t.Errorf("尺寸不一致: %dx%d", dst.Cols(), dst.Rows())
	}

	if _, err := DecodeImage([]byte("garbage")); err == nil {
		t.Error("无效数据应返回错误")
	}
}

func TestClampScore(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0.42: 0.42, 1.0000001: 1}
	for in, want := range cases {
		if got := clampScore(in); got != want {
			t.Errorf("clampScore(%v) = %v, 期望 %v", in, got, want)
		}
	}
}

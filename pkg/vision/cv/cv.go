// Package cv 提供截图上的模板匹配与图像读写工具
//
// 基本用法:
//
//	m := cv.NewMatcher(cv.WithThreshold(0.7))
//	res := m.ScoreFiles("screen.png", "button_image/登录_0.91.png")
//	if res.Found {
//	    fmt.Printf("找到位置: (%d, %d) 分数 %.2f\n", res.Center.X, res.Center.Y, res.Score)
//	}
package cv

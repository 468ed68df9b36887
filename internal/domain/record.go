package domain

// PairRecord 描述扫描得到的一个图片文件及其配对状态。
//
// 不变量（实现必须遵守）：
// - ImagePath 非空：记录始终锚定在图片上
// - Paired=true 时 CaptionPath 指向扫描时存在的文件，且只能是两种命名形式之一
//   （xxx.txt 或 xxx.png.txt，见 scan 包）
type PairRecord struct {
	ImagePath   string
	CaptionPath string // 未配对时为空
	BaseName    string // 图片文件名去扩展名
	Paired      bool
}

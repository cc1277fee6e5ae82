package piece

import "fmt"

// Kind 方块种类，顺序固定为 I O T S Z J L
type Kind int

const (
	I Kind = iota
	O
	T
	S
	Z
	J
	L
)

// NumKinds 方块种类数
const NumKinds = 7

// None 表示空槽（暂存区为空等）
const None Kind = -1

var kindChars = [NumKinds]byte{'I', 'O', 'T', 'S', 'Z', 'J', 'L'}

// String 返回单字母名称
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return string(kindChars[k])
}

// Valid 是否为合法种类
func (k Kind) Valid() bool {
	return k >= I && k <= L
}

// Color 锁定到棋盘后的颜色码，1-7，0 为空格
func (k Kind) Color() int {
	return int(k) + 1
}

// ParseKind 解析单字母名称
func ParseKind(s string) (Kind, error) {
	if len(s) == 1 {
		for i, c := range kindChars {
			if c == s[0] {
				return Kind(i), nil
			}
		}
	}
	return None, fmt.Errorf("invalid piece kind %q", s)
}

// Cell 相对 4x4 包围盒左上角的偏移
type Cell struct {
	X, Y int
}

// Shape 某种方块在某个旋转状态下占据的 4 个格子
type Shape [4]Cell

func shape(xs, ys [4]int) Shape {
	var s Shape
	for i := range s {
		s[i] = Cell{X: xs[i], Y: ys[i]}
	}
	return s
}

// shapes 静态形状表：种类 × 4 个旋转状态
var shapes = [NumKinds][4]Shape{
	I: {
		shape([4]int{0, 1, 2, 3}, [4]int{1, 1, 1, 1}),
		shape([4]int{2, 2, 2, 2}, [4]int{0, 1, 2, 3}),
		shape([4]int{0, 1, 2, 3}, [4]int{2, 2, 2, 2}),
		shape([4]int{1, 1, 1, 1}, [4]int{0, 1, 2, 3}),
	},
	O: {
		shape([4]int{1, 2, 1, 2}, [4]int{0, 0, 1, 1}),
		shape([4]int{1, 2, 1, 2}, [4]int{0, 0, 1, 1}),
		shape([4]int{1, 2, 1, 2}, [4]int{0, 0, 1, 1}),
		shape([4]int{1, 2, 1, 2}, [4]int{0, 0, 1, 1}),
	},
	T: {
		shape([4]int{1, 0, 1, 2}, [4]int{0, 1, 1, 1}),
		shape([4]int{1, 1, 1, 2}, [4]int{0, 1, 2, 1}),
		shape([4]int{0, 1, 2, 1}, [4]int{1, 1, 1, 2}),
		shape([4]int{0, 1, 1, 1}, [4]int{1, 0, 1, 2}),
	},
	S: {
		shape([4]int{1, 2, 0, 1}, [4]int{1, 1, 2, 2}),
		shape([4]int{1, 1, 2, 2}, [4]int{0, 1, 1, 2}),
		shape([4]int{1, 2, 0, 1}, [4]int{1, 1, 2, 2}),
		shape([4]int{1, 1, 2, 2}, [4]int{0, 1, 1, 2}),
	},
	Z: {
		shape([4]int{0, 1, 1, 2}, [4]int{1, 1, 2, 2}),
		shape([4]int{2, 2, 1, 1}, [4]int{0, 1, 1, 2}),
		shape([4]int{0, 1, 1, 2}, [4]int{1, 1, 2, 2}),
		shape([4]int{2, 2, 1, 1}, [4]int{0, 1, 1, 2}),
	},
	J: {
		shape([4]int{0, 0, 1, 2}, [4]int{0, 1, 1, 1}),
		shape([4]int{1, 2, 1, 1}, [4]int{0, 0, 1, 2}),
		shape([4]int{0, 1, 2, 2}, [4]int{1, 1, 1, 0}),
		shape([4]int{1, 1, 0, 1}, [4]int{0, 1, 2, 2}),
	},
	L: {
		shape([4]int{2, 0, 1, 2}, [4]int{0, 1, 1, 1}),
		shape([4]int{1, 1, 1, 2}, [4]int{0, 1, 2, 2}),
		shape([4]int{0, 1, 2, 0}, [4]int{1, 1, 1, 2}),
		shape([4]int{0, 1, 1, 1}, [4]int{0, 0, 1, 2}),
	},
}

// ShapeOf 返回种类 k 在旋转状态 rot 下的形状，rot 按 4 取模
func ShapeOf(k Kind, rot int) Shape {
	return shapes[k][rot&3]
}

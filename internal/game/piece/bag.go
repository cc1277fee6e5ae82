package piece

import "math/rand/v2"

// Bag 7-bag 随机器：每轮发出全部 7 种方块各一次，发完后重新洗牌
type Bag struct {
	rng  *rand.Rand
	bag  []Kind
	seed uint64
}

// NewBag 创建随机器，相同种子产生相同序列
func NewBag(seed uint64) *Bag {
	return &Bag{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		bag:  make([]Kind, 0, NumKinds),
		seed: seed,
	}
}

// Seed 返回创建时的种子
func (b *Bag) Seed() uint64 {
	return b.seed
}

// Next 发出下一个方块
func (b *Bag) Next() Kind {
	if len(b.bag) == 0 {
		b.refill()
	}
	k := b.bag[len(b.bag)-1]
	b.bag = b.bag[:len(b.bag)-1]
	return k
}

func (b *Bag) refill() {
	for k := range Kind(NumKinds) {
		b.bag = append(b.bag, k)
	}
	b.rng.Shuffle(len(b.bag), func(i, j int) {
		b.bag[i], b.bag[j] = b.bag[j], b.bag[i]
	})
}

package zapstep

// DynamicArrayElementWord returns the word of element i of a dynamic array whose length
// word is lenWord.
func DynamicArrayElementWord(lenWord, i int) int {
	return lenWord + 1 + i
}

// VaultRequestLayout is the word layout of
// joinPool/exitPool(bytes32,address,address,(address[],uint256[],bytes,bool)) for a pool
// with n assets. The request tuple starts at word 4 and its arrays follow in order.
type VaultRequestLayout struct {
	Assets int
}

// AssetsLenWord is the length word of the assets array.
func (l VaultRequestLayout) AssetsLenWord() int {
	return 8
}

// LimitsLenWord is the length word of maxAmountsIn / minAmountsOut.
func (l VaultRequestLayout) LimitsLenWord() int {
	return 9 + l.Assets
}

// LimitWord is the word of maxAmountsIn[i] / minAmountsOut[i].
func (l VaultRequestLayout) LimitWord(i int) int {
	return DynamicArrayElementWord(l.LimitsLenWord(), i)
}

// UserDataLenWord is the length word of the userData bytes.
func (l VaultRequestLayout) UserDataLenWord() int {
	return 10 + 2*l.Assets
}

// UserDataWord returns the word of the i-th word inside userData.
func (l VaultRequestLayout) UserDataWord(i int) int {
	return l.UserDataLenWord() + 1 + i
}

// ExactTokensInAmountWord is amountsIn[i] of a (kind, uint256[] amountsIn, minBptOut) join.
func (l VaultRequestLayout) ExactTokensInAmountWord(i int) int {
	// kind, pointer, minBptOut, len, elements
	return l.UserDataWord(4 + i)
}

// SecondUserDataWord is the word after the kind in (kind, uint256) user data, such as the
// BPT amount of an exact BPT join or exit.
func (l VaultRequestLayout) SecondUserDataWord() int {
	return l.UserDataWord(1)
}

// SingleSwapAmountWord is the amount of
// swap((bytes32,uint8,address,address,uint256,bytes),(address,bool,address,bool),uint256,uint256).
// The head is the SingleSwap pointer, four FundManagement words, limit and deadline, so the
// SingleSwap tuple starts at word 7.
const SingleSwapAmountWord = 11

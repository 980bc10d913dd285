// Package patternutil はトークンから決定的なプレースホルダーパターンを生成する。
// 規格準拠のマトリクスコードではなく、パターン自体に意味はない。
// 本番システムでは規格準拠のエンコーダに置き換えること。
package patternutil

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	gridSize = 21
	cellSize = 8
)

// Render はトークンから決定的に導出したSVGパターンをdata URLとして返す。
func Render(codeValue string) string {
	svg := renderSVG(codeValue)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

// renderSVG はトークンのダイジェストをビット列として敷き詰めたSVGを生成する。
func renderSVG(codeValue string) string {
	var b strings.Builder
	size := gridSize * cellSize
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, size, size, size, size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#fff"/>`, size, size)

	// ダイジェストを連鎖してグリッド全体を埋める
	digest := sha256.Sum256([]byte(codeValue))
	bits := digest[:]
	for len(bits)*8 < gridSize*gridSize {
		next := sha256.Sum256(bits)
		bits = append(bits, next[:]...)
	}

	for row := 0; row < gridSize; row++ {
		for col := 0; col < gridSize; col++ {
			idx := row*gridSize + col
			if bits[idx/8]&(1<<(idx%8)) == 0 {
				continue
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#000"/>`,
				col*cellSize, row*cellSize, cellSize, cellSize)
		}
	}

	b.WriteString(`</svg>`)
	return b.String()
}

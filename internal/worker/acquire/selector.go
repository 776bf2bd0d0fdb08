package acquire

import "github.com/hitoshi/seedman/internal/model"

// SelectWithinBudget は候補列の先頭から、合計サイズが予算内に収まる
// 最長の先頭区間を返す。予算を超える最初の候補で停止する
// （それ以降のより小さい候補も選ばれない）。予算0以下は無制限。
func SelectWithinBudget(candidates []*model.Candidate, budgetBytes int64) []*model.Candidate {
	if budgetBytes <= 0 {
		return candidates
	}

	var accumulated int64
	var selected []*model.Candidate
	for _, c := range candidates {
		if accumulated+c.SizeBytes > budgetBytes {
			break
		}
		accumulated += c.SizeBytes
		selected = append(selected, c)
	}
	return selected
}

// TotalSize は候補列の合計サイズを返す。
func TotalSize(candidates []*model.Candidate) int64 {
	var total int64
	for _, c := range candidates {
		total += c.SizeBytes
	}
	return total
}

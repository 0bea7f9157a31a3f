package service

import "github.com/pribylovaa/page-comments/internal/models"

// assembleThreads раскладывает ответы по корням за один проход.
// roots — в порядке выдачи (новые сверху); replies — сгруппированы по parent_id,
// внутри группы старые сверху. Ответы на родителей не из roots отбрасываются.
func assembleThreads(roots []models.Comment, replies []models.Comment) []models.Thread {
	threads := make([]models.Thread, len(roots))
	index := make(map[int64]int, len(roots))
	for i, r := range roots {
		threads[i] = models.Thread{Comment: public(r)}
		index[r.ID] = i
	}

	for _, rep := range replies {
		if rep.ParentID == nil {
			continue
		}

		i, ok := index[*rep.ParentID]
		if !ok {
			continue
		}

		threads[i].Children = append(threads[i].Children, public(rep))
	}

	return threads
}

func parentIDs(roots []models.Comment) []int64 {
	ids := make([]int64, 0, len(roots))
	for _, r := range roots {
		ids = append(ids, r.ID)
	}
	return ids
}

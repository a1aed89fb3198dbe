package redemptions

import "serotonyl.ru/points-engine/internal/features/ledger"

// BuildEvidence сводит выборку журнала (новые записи сверху) в доказательства:
// суммы по типам, начисления, списания и recent последних записей.
// Функция ничего не пишет, её можно вызывать на каждом просмотре.
func BuildEvidence(entries []*ledger.Entry, recent int) *Evidence {
	ev := &Evidence{
		SampleSize:    len(entries),
		TotalsByType:  make(map[ledger.EntryType]int64),
		RecentEntries: []*ledger.Entry{},
	}
	for _, e := range entries {
		ev.TotalsByType[e.Type] += e.Amount
		if e.Amount > 0 {
			ev.TotalCredits += e.Amount
		} else {
			ev.TotalDebits -= e.Amount
		}
	}
	if recent > len(entries) {
		recent = len(entries)
	}
	if recent > 0 {
		ev.RecentEntries = entries[:recent]
	}
	return ev
}

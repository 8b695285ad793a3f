package domain

// MergeRoster накладывает updates на current по ID и возвращает новый срез.
// Отметки времени и счётчик берутся по максимуму, поэтому слияние никогда не
// откатывает активность или отправку. Новые пользователи добавляются в конец.
func MergeRoster(current, updates []User) []User {
	out := CloneRoster(current)
	index := make(map[string]int, len(out))
	for i, u := range out {
		if _, ok := index[u.ID]; !ok {
			index[u.ID] = i
		}
	}
	for _, upd := range updates {
		if upd.ID == "" {
			continue
		}
		i, ok := index[upd.ID]
		if !ok {
			index[upd.ID] = len(out)
			out = append(out, upd)
			continue
		}
		existing := &out[i]
		existing.Touch(upd.LastActive)
		if upd.LastSent > existing.LastSent {
			existing.LastSent = upd.LastSent
		}
		if upd.SentCount > existing.SentCount {
			existing.SentCount = upd.SentCount
		}
		if upd.Name != "" {
			existing.Name = upd.Name
		}
	}
	return out
}

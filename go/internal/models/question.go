package models

// Question is an immutable catalog record.
type Question struct {
	ID            string   `json:"id" yaml:"id" bson:"_id"`
	Text          string   `json:"text" yaml:"text" bson:"text"`
	CorrectOption string   `json:"correct_option" yaml:"correct_option" bson:"correct_option"`
	Options       []string `json:"options" yaml:"options" bson:"options"`
}

// Valid reports whether the question has at least two options and lists the
// correct option exactly once.
func (q Question) Valid() bool {
	if q.ID == "" || len(q.Options) < 2 {
		return false
	}
	n := 0
	for _, o := range q.Options {
		if o == q.CorrectOption {
			n++
		}
	}
	return n == 1
}

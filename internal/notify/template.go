// Package notify — шаблоны и рассылка уведомлений родителям.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Category string

const (
	CategoryAbsence    Category = "absence"
	CategoryTuitionDue Category = "tuition_due"
	CategoryExamResult Category = "exam_result"
)

// Плейсхолдеры подставляются дословно.
const (
	PhStudentName = "[tên học sinh]"
	PhDate        = "[ngày]"
	PhClass       = "[lớp]"
	PhAmount      = "[số tiền]"
	PhMonths      = "[số tháng]"
	PhSubject     = "[môn]"
	PhScore       = "[điểm]"
)

var common = []string{PhStudentName, PhDate, PhClass}

var placeholders = map[Category][]string{
	CategoryAbsence:    common,
	CategoryTuitionDue: append(append([]string{}, common...), PhAmount, PhMonths),
	CategoryExamResult: append(append([]string{}, common...), PhSubject, PhScore),
}

// Шаблоны по умолчанию; переопределяются конфигом.
var DefaultTemplates = map[Category]string{
	CategoryAbsence: "Trung tâm xin thông báo: học sinh [tên học sinh] vắng mặt buổi học lớp [lớp] ngày [ngày]. " +
		"Quý phụ huynh vui lòng liên hệ trung tâm nếu cần hỗ trợ.",
	CategoryTuitionDue: "Kính gửi quý phụ huynh, học sinh [tên học sinh] còn [số tiền] học phí chưa đóng ([số tháng] tháng). " +
		"Vui lòng hoàn thành trước ngày [ngày].",
	CategoryExamResult: "Kết quả kiểm tra môn [môn] lớp [lớp] của học sinh [tên học sinh] ngày [ngày]: [điểm] điểm.",
}

// Vars — значения плейсхолдеров.
type Vars map[string]string

// Placeholders — набор плейсхолдеров категории.
func Placeholders(c Category) []string {
	if ph, ok := placeholders[c]; ok {
		return ph
	}
	return common
}

// Render заменяет каждое вхождение известного плейсхолдера категории за один проход:
// подставленные значения повторно не разбираются. Отсутствующее значение — пустая строка,
// прочий текст не трогаем. Ошибок не бывает.
func Render(c Category, tmpl string, vars Vars) string {
	ph := Placeholders(c)
	pairs := make([]string, 0, 2*len(ph))
	for _, p := range ph {
		pairs = append(pairs, p, vars[p])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// FormatVND: 3000000 → "3.000.000 đ".
func FormatVND(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + " đ"
	if neg {
		out = "-" + out
	}
	return out
}

func FormatDate(t time.Time) string { return t.Format("02/01/2006") }

func FormatScore(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return fmt.Sprintf("%.1f", v)
}

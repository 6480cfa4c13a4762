package category

// Miscellaneous is returned when no category keyword matches.
const Miscellaneous = "Miscellaneous"

// Category maps a label to the lowercase keywords that select it.
type Category struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Table is an ordered list of categories. Order is the only tie-break: the
// first category with a matching keyword wins, so a Table must never be
// turned into a map.
type Table []Category

// DefaultTable returns the compiled-in category table.
func DefaultTable() Table {
	return Table{
		{Label: "Food & Dining", Keywords: []string{"zomato", "swiggy", "restaurant", "cafe", "mcdonalds", "kfc", "starbucks", "baker", "eats"}},
		{Label: "Groceries", Keywords: []string{"blinkit", "zepto", "instamart", "bigbasket", "supermarket", "grocery", "mart"}},
		{Label: "Transport", Keywords: []string{"uber", "ola", "rapido", "metro", "fuel", "petrol", "diesel", "irctc"}},
		{Label: "Shopping", Keywords: []string{"amazon", "flipkart", "myntra", "ajio", "store", "retail"}},
		{Label: "Utilities", Keywords: []string{"recharge", "bill", "electricity", "water", "broadband", "airtel", "jio", "vi"}},
		{Label: "Entertainment", Keywords: []string{"netflix", "prime", "spotify", "movie", "bookmyshow", "pvr"}},
	}
}

// Labels returns the labels of the table in declaration order.
func (t Table) Labels() []string {
	labels := make([]string, 0, len(t))
	for _, c := range t {
		labels = append(labels, c.Label)
	}
	return labels
}

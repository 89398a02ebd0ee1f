package reference

// SampleBundle returns a small but complete reference bundle. Tests across packages
// build on it so the hierarchy stays consistent.
func SampleBundle() Bundle {
	return Bundle{
		Companies: []Company{
			{
				ID:   1,
				Name: "Alpha Logistics",
				Categories: []Category{
					{ID: 11, Name: "Sales", OperationTypeID: 1, Articles: []Article{{ID: 111, Title: "Freight"}, {ID: 112, Title: "Storage"}}},
					{ID: 12, Name: "Office", OperationTypeID: 2, Articles: []Article{{ID: 121, Title: "Rent"}}},
				},
			},
			{
				ID:   2,
				Name: "Beta Trading",
				Categories: []Category{
					{ID: 21, Name: "Wholesale", OperationTypeID: 1, Articles: []Article{{ID: 211, Title: "Bulk"}}},
					{ID: 22, Name: "Office", OperationTypeID: 2, Articles: []Article{{ID: 221, Title: "Rent"}, {ID: 222, Title: "Utilities"}}},
				},
			},
		},
		OperationTypes: []OperationType{
			{ID: 1, Name: "Приход"},
			{ID: 2, Name: "Расход"},
			{ID: 3, Name: "Перемещение"},
			{ID: 4, Name: "Выставить счёт"},
			{ID: 5, Name: "Выставить расход"},
		},
		PaymentTypes: []PaymentType{{ID: 1, Name: "Наличные"}, {ID: 2, Name: "Безнал"}},
		Wallets:      []Wallet{{ID: 7, Name: "Main", UserID: 1}, {ID: 8, Name: "Reserve", UserID: 1}},
		Currencies: []Currency{
			{ID: 1, Code: "KGS", Name: "Сом", Symbol: "с"},
			{ID: 2, Code: "USD", Name: "Доллар", Symbol: "$"},
		},
		Counterparties: []Counterparty{{ID: 31, FullName: "ООО Ромашка"}, {ID: 32, FullName: "ИП Иванов"}},
	}
}

// MustLoadSample loads SampleBundle with the default catalog.
func MustLoadSample() *Data {
	d, err := Load(SampleBundle(), DefaultCatalog())
	if err != nil {
		panic(err)
	}
	return d
}

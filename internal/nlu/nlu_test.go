package nlu

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Intent
	}{
		{
			name: "hospital with trailing request",
			in:   "서울대학교병원 가는 길 알려주세요",
			want: HospitalIntent("서울대학교병원"),
		},
		{
			name: "symptom",
			in:   "머리가 많이 아파요",
			want: SymptomIntent("머리가 많이 아파요"),
		},
		{
			name: "empty",
			in:   "",
			want: SymptomIntent(""),
		},
		{
			name: "whitespace only",
			in:   "   \t ",
			want: SymptomIntent(""),
		},
		{
			name: "quotes stripped",
			in:   `  "강남세브란스병원"으로 가 주세요 `,
			want: HospitalIntent("강남세브란스병원"),
		},
		{
			name: "symptom is normalized",
			in:   ` '감기 증상이 조금 있어요' `,
			want: SymptomIntent("감기 증상이 조금 있어요"),
		},
		{
			name: "latin and digits",
			in:   "Samsung 2 병원 어디야",
			want: HospitalIntent("Samsung 2 병원"),
		},
		{
			name: "punctuation starts a new run",
			in:   "배가 아파요, 한양대병원으로 갈래요",
			want: HospitalIntent("한양대병원"),
		},
		{
			name: "longest run keeps the last suffix",
			in:   "서울병원 옆 강남병원",
			want: HospitalIntent("서울병원 옆 강남병원"),
		},
		{
			name: "first qualifying run wins",
			in:   "서울병원. 강남병원",
			want: HospitalIntent("서울병원"),
		},
		{
			name: "bare suffix",
			in:   "병원",
			want: HospitalIntent("병원"),
		},
		{
			name: "hyphen breaks the name",
			in:   "ABC-병원",
			want: HospitalIntent("병원"),
		},
		{
			name: "jamo are not name runes",
			in:   "ㅋㅋ병원",
			want: HospitalIntent("병원"),
		},
		{
			name: "split suffix does not match",
			in:   "병 원에 가고 싶어요",
			want: SymptomIntent("병 원에 가고 싶어요"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.in)
			if got != tt.want {
				t.Errorf("Extract(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	inputs := []string{"서울대학교병원 가는 길 알려주세요", "머리가 많이 아파요", "", "병원 병원 병원"}
	for _, in := range inputs {
		first := Extract(in)
		for i := 0; i < 10; i++ {
			if got := Extract(in); got != first {
				t.Fatalf("Extract(%q) changed between calls: %s vs %s", in, first, got)
			}
		}
	}
}

func TestExtract_HospitalNameEndsWithSuffix(t *testing.T) {
	inputs := []string{"a병원b", "  x y 병원  ", "12병원34병원!", "가나다병원라마"}
	for _, in := range inputs {
		got := Extract(in)
		if got.Kind != KindHospital {
			t.Fatalf("Extract(%q) = %s, want hospital intent", in, got)
		}
		name := got.HospitalName
		if len(name) < len(HospitalSuffix) || name[len(name)-len(HospitalSuffix):] != HospitalSuffix {
			t.Errorf("hospital name %q does not end with %q", name, HospitalSuffix)
		}
		if got.SymptomQuery != "" {
			t.Errorf("hospital intent must not carry a symptom query, got %q", got.SymptomQuery)
		}
	}
}

package snapshot

import "fmt"

var characterNames = map[uint32]string{
	1:  "Ken the Eagle",
	2:  "Casshan",
	3:  "Tekkaman",
	4:  "Polimar",
	5:  "Yatterman-1",
	6:  "Doronjo",
	7:  "Ippatsuman",
	8:  "Jun the Swan",
	10: "Karas",
	12: "Ryu",
	13: "Chun-Li",
	14: "Batsu",
	15: "Morrigan",
	16: "Alex",
	17: "Viewtiful Joe",
	18: "Volnutt",
	19: "Roll",
	20: "Saki",
	21: "Soki",
	26: "Tekkaman Blade",
	27: "Joe the Condor",
	28: "Yatterman-2",
	29: "Zero",
	30: "Frank West",
}

// CharacterName is a display label only; nothing keys off it.
func CharacterName(id *uint32) string {
	if id == nil {
		return "???"
	}
	if name, ok := characterNames[*id]; ok {
		return name
	}
	return fmt.Sprintf("ID_%d", *id)
}

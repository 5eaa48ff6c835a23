package monitor

import "testing"

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		in      string
		want    Identity
		wantErr bool
	}{
		{in: "Archipelago.gg:38281:Alice", want: Identity{Host: "archipelago.gg", Port: 38281, Player: "Alice"}},
		{in: " localhost:1234:Name:With:Colons ", want: Identity{Host: "localhost", Port: 1234, Player: "Name:With:Colons"}},
		{in: "archipelago.gg:38281", wantErr: true},
		{in: "archipelago.gg:port:Alice", wantErr: true},
		{in: "archipelago.gg:70000:Alice", wantErr: true},
		{in: ":38281:Alice", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIdentity(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if back, _ := ParseIdentity(got.String()); back != got {
				t.Fatalf("String round trip: %q", got.String())
			}
		})
	}
}

func TestIdentityHostCaseInsensitive(t *testing.T) {
	if NewIdentity("ArchipelaGO.gg", 1, "P") != NewIdentity("archipelago.gg ", 1, "P") {
		t.Fatal("host comparison must ignore case")
	}
}

package resolver

import "testing"

func TestWeakTitlePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Mon Oncle", want: "Mon%Oncle"},
		{in: "(Le Voyage dans la Lune)", want: "Le%Voyage%dans%la%Lune"},
		{in: "Sex, Lies, and Videotape", want: "Sex%Lies%and%Videotape"},
		{in: "M*A*S*H", want: "M%A%S%H"},
		{in: "Amélie!", want: "Amélie%"},
		{in: "  Paris,   Texas ", want: "Paris%Texas"},
		{in: "(...)", want: ""},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := WeakTitlePattern(tt.in); got != tt.want {
				t.Fatalf("WeakTitlePattern(%q)=%q want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStrongTitlePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "Mon Oncle", want: "%Mon%Oncle%", wantOK: true},
		{in: "The Umbrellas of Cherbourg", want: "%The%Umbrella%", wantOK: true},
		{in: "(Rome, Open City)", want: "%Rome%", wantOK: true},
		{in: "A!    !Amarcord", want: "%Amarcord%", wantOK: true},
		{in: "M*A*S*H", wantOK: false},
		{in: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := StrongTitlePattern(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("StrongTitlePattern(%q) ok=%v want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("StrongTitlePattern(%q)=%q want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDirectorPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Agnès Varda", want: "%Agnès%Varda%"},
		{in: "Francis Ford Coppola", want: "%Francis%Coppola%"},
		{in: "Jean Marie Gustave Le Clezio", want: "%Jean%Gustave%Clezio%"},
		{in: "Satyajit", want: "%Satyajit%"},
		{in: "   ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := DirectorPattern(tt.in); got != tt.want {
				t.Fatalf("DirectorPattern(%q)=%q want %q", tt.in, got, tt.want)
			}
		})
	}
}
